package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// RunTransaction executes fn within a transaction on the provided client.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	txnCtx := ctx
	var cancel context.CancelFunc
	if cfg.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > cfg.timeout {
			txnCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
		}
	}
	if cancel != nil {
		defer cancel()
	}

	firestoreOpts := make([]firestore.TransactionOption, 0, 1)
	if cfg.attempts > 0 {
		firestoreOpts = append(firestoreOpts, firestore.MaxAttempts(cfg.attempts))
	}

	err := client.RunTransaction(txnCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		stateCtx := WithTransaction(ctx, tx)
		if err := fn(stateCtx, tx); err != nil {
			return err
		}
		return flushStagedWrites(stateCtx, tx)
	}, firestoreOpts...)

	return WrapError("transaction", err)
}

type txContextKey struct{}

// txState carries the in-flight transaction together with the staged writes
// and the documents already read. Firestore rejects any read issued after
// the first buffered write, so repository methods read eagerly and stage
// their writes here; the writes are replayed in order once the transaction
// body returns.
type txState struct {
	tx     *firestore.Transaction
	docs   map[string]any
	writes []func(*firestore.Transaction) error
}

// WithTransaction stores an in-flight transaction on the context so that
// repository methods invoked inside a unit of work join it instead of
// starting their own.
func WithTransaction(ctx context.Context, tx *firestore.Transaction) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if state, ok := ctx.Value(txContextKey{}).(*txState); ok && state.tx == tx {
		return ctx
	}
	return context.WithValue(ctx, txContextKey{}, &txState{tx: tx})
}

// TransactionFromContext returns the ambient transaction when present.
func TransactionFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	state, ok := transactionState(ctx)
	if !ok {
		return nil, false
	}
	return state.tx, true
}

func transactionState(ctx context.Context) (*txState, bool) {
	if ctx == nil {
		return nil, false
	}
	state, ok := ctx.Value(txContextKey{}).(*txState)
	return state, ok && state != nil && state.tx != nil
}

// StageWrite defers a transactional write until every read in the unit of
// work has been issued. Returns an error when no transaction is ambient.
func StageWrite(ctx context.Context, write func(tx *firestore.Transaction) error) error {
	state, ok := transactionState(ctx)
	if !ok {
		return errors.New("firestore: no ambient transaction to stage write on")
	}
	state.writes = append(state.writes, write)
	return nil
}

// StageDoc records a decoded document under the given key, normally the
// document path, so a later mutation in the same unit of work reuses it
// instead of re-reading. Mutations through the stored pointer are picked up
// by the staged write that persists it.
func StageDoc(ctx context.Context, key string, doc any) {
	state, ok := transactionState(ctx)
	if !ok {
		return
	}
	if state.docs == nil {
		state.docs = make(map[string]any)
	}
	state.docs[key] = doc
}

// StagedDoc returns the document previously recorded under key.
func StagedDoc(ctx context.Context, key string) (any, bool) {
	state, ok := transactionState(ctx)
	if !ok || state.docs == nil {
		return nil, false
	}
	doc, ok := state.docs[key]
	return doc, ok
}

func flushStagedWrites(ctx context.Context, tx *firestore.Transaction) error {
	state, ok := transactionState(ctx)
	if !ok {
		return nil
	}
	for _, write := range state.writes {
		if err := write(tx); err != nil {
			return err
		}
	}
	state.writes = nil
	return nil
}
