// Package idempotency makes order placement and the other mutating order
// endpoints safe to retry. A buyer whose connection drops mid-checkout can
// resend the same request with the same Idempotency-Key and get the original
// response back instead of a second order.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long completed claims are retained before a key may be
// reused for a fresh request.
const DefaultTTL = 24 * time.Hour

// Outcome describes what Begin found for a key.
type Outcome int

const (
	// OutcomeNew means the key was unclaimed; the caller should run the
	// handler and record the response with Complete.
	OutcomeNew Outcome = iota
	// OutcomeReplay means a response is already stored for the key.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key and has not
	// finished yet.
	OutcomeInFlight
)

// Claim is the result of Begin.
type Claim struct {
	Outcome Outcome
	Replay  StoredResponse
}

// StoredResponse is the HTTP response captured for replay.
type StoredResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists claims keyed by buyer-scoped idempotency key.
type Store interface {
	Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key, fingerprint string, resp StoredResponse, now time.Time, ttl time.Duration) error
	Abandon(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a request with
// a different method, path, body, or requester.
var ErrFingerprintMismatch = errors.New("idempotency: key reused for a different request")

func docID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storableHeaders drops hop-by-hop headers that must not be replayed.
func storableHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}
	filtered := make(map[string][]string, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade":
			continue
		}
		filtered[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
