package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CODProvider implements the Provider contract for cash on delivery. There
// is no gateway leg: checkout confirms synchronously so the caller reserves
// stock immediately, and settlement happens at the doorstep.
type CODProvider struct {
	clock func() time.Time
}

// NewCODProvider constructs a cash on delivery Provider.
func NewCODProvider(clock func() time.Time) *CODProvider {
	if clock == nil {
		clock = time.Now
	}
	return &CODProvider{clock: clock}
}

// CreateCheckout returns an immediately confirmed checkout with no redirect.
func (p *CODProvider) CreateCheckout(_ context.Context, req CheckoutRequest) (Checkout, error) {
	if p == nil {
		return Checkout{}, errors.New("cod: provider is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return Checkout{}, errors.New("cod: order id is required")
	}
	return Checkout{
		Provider:      "cash_on_delivery",
		TransactionID: fmt.Sprintf("COD_%s", orderID),
		Confirmed:     true,
	}, nil
}

// VerifyNotification is unsupported: no gateway calls back for cash.
func (p *CODProvider) VerifyNotification(context.Context, Notification) (Confirmation, error) {
	return Confirmation{}, errors.New("cod: notifications are not supported")
}

// Refund records a manual cash refund acknowledgement.
func (p *CODProvider) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	if p == nil {
		return RefundResult{}, errors.New("cod: provider is nil")
	}
	now := p.clock().UTC()
	return RefundResult{
		Provider:   "cash_on_delivery",
		RefundID:   "cod_manual_" + strings.TrimSpace(req.TransactionID),
		Status:     StatusRefunded,
		RefundedAt: &now,
	}, nil
}
