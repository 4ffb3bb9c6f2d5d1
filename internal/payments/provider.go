package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded (partially or fully).
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrIntegrityMismatch is returned when a gateway notification fails its
// signature or hash check. Callers must treat it as a fraud signal and leave
// all state untouched.
var ErrIntegrityMismatch = errors.New("payments: notification integrity mismatch")

// Customer carries the buyer fields gateways require on checkout.
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// CheckoutRequest captures the payload required to start a gateway checkout.
type CheckoutRequest struct {
	OrderID     string
	OrderNumber string
	Amount      int64
	Currency    string
	ProductInfo string
	Customer    Customer
	SuccessURL  string
	FailureURL  string
	Metadata    map[string]string
}

// Checkout is the provider response handed back to the client. Hosted
// gateways return a redirect URL plus signed form fields; synchronous
// providers return Confirmed=true with no redirect.
type Checkout struct {
	Provider      string
	TransactionID string
	RedirectURL   string
	FormFields    map[string]string
	Confirmed     bool
	ExpiresAt     time.Time
}

// Notification is a raw gateway callback before verification. Hosted form
// gateways post url-encoded params; JSON gateways post Payload with a
// detached Signature header.
type Notification struct {
	Params    map[string]string
	Payload   []byte
	Signature string
}

// Confirmation is the verified outcome of a gateway notification.
type Confirmation struct {
	Provider      string
	TransactionID string
	OrderID       string
	Status        Status
	Amount        string
	Raw           map[string]string
}

// RefundRequest defines a gateway refund attempt.
type RefundRequest struct {
	TransactionID  string
	GatewayRef     string
	Amount         *int64
	Reason         string
	IdempotencyKey string
}

// RefundResult reports the gateway's refund acknowledgement.
type RefundResult struct {
	Provider   string
	RefundID   string
	Status     Status
	RefundedAt *time.Time
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	VerifyNotification(ctx context.Context, n Notification) (Confirmation, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// Manager coordinates provider selection keyed by payment method.
type Manager struct {
	providers     map[string]Provider
	defaultMethod string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultMethod overrides the fallback method used when none is supplied.
func WithDefaultMethod(method string) ManagerOption {
	return func(m *Manager) {
		m.defaultMethod = strings.TrimSpace(strings.ToLower(method))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Resolve returns the provider registered for the payment method.
func (m *Manager) Resolve(method string) (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	key := strings.TrimSpace(strings.ToLower(method))
	if key == "" {
		key = m.defaultMethod
	}
	if p, ok := m.providers[key]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, method)
}

// CreateCheckout delegates to the provider registered for the method.
func (m *Manager) CreateCheckout(ctx context.Context, method string, req CheckoutRequest) (Checkout, error) {
	provider, err := m.Resolve(method)
	if err != nil {
		return Checkout{}, err
	}
	checkout, err := provider.CreateCheckout(ctx, req)
	if err != nil {
		return Checkout{}, err
	}
	if checkout.Provider == "" {
		checkout.Provider = strings.TrimSpace(strings.ToLower(method))
	}
	return checkout, nil
}

// VerifyNotification delegates to the provider registered for the method.
func (m *Manager) VerifyNotification(ctx context.Context, method string, n Notification) (Confirmation, error) {
	provider, err := m.Resolve(method)
	if err != nil {
		return Confirmation{}, err
	}
	return provider.VerifyNotification(ctx, n)
}

// Refund delegates to the provider registered for the method.
func (m *Manager) Refund(ctx context.Context, method string, req RefundRequest) (RefundResult, error) {
	provider, err := m.Resolve(method)
	if err != nil {
		return RefundResult{}, err
	}
	return provider.Refund(ctx, req)
}
