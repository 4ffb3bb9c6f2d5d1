package payments

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	checkout Checkout
	verified Confirmation
	err      error
}

func (s *stubProvider) CreateCheckout(context.Context, CheckoutRequest) (Checkout, error) {
	return s.checkout, s.err
}

func (s *stubProvider) VerifyNotification(context.Context, Notification) (Confirmation, error) {
	return s.verified, s.err
}

func (s *stubProvider) Refund(context.Context, RefundRequest) (RefundResult, error) {
	return RefundResult{}, s.err
}

func TestManagerResolve(t *testing.T) {
	cod := &stubProvider{}
	payu := &stubProvider{}
	manager, err := NewManager(map[string]Provider{
		"cash_on_delivery": cod,
		"Pay_U":            payu,
	}, WithDefaultMethod("cash_on_delivery"))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if p, err := manager.Resolve("PAY_U"); err != nil || p != Provider(payu) {
		t.Fatalf("expected case-insensitive resolution, got %v %v", p, err)
	}
	if p, err := manager.Resolve(""); err != nil || p != Provider(cod) {
		t.Fatalf("expected default method fallback, got %v %v", p, err)
	}
	if _, err := manager.Resolve("stripe"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected unsupported provider, got %v", err)
	}
}

func TestManagerCreateCheckoutFillsProvider(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"cash_on_delivery": &stubProvider{checkout: Checkout{Confirmed: true}},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	checkout, err := manager.CreateCheckout(context.Background(), "cash_on_delivery", CheckoutRequest{OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if checkout.Provider != "cash_on_delivery" {
		t.Fatalf("expected provider backfilled, got %q", checkout.Provider)
	}
}

func TestNewManagerRejectsInvalidRegistrations(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty provider map")
	}
	if _, err := NewManager(map[string]Provider{" ": &stubProvider{}}); err == nil {
		t.Fatalf("expected error for blank key")
	}
	if _, err := NewManager(map[string]Provider{"cod": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}

func TestCODProviderCheckoutConfirmsSynchronously(t *testing.T) {
	provider := NewCODProvider(nil)

	checkout, err := provider.CreateCheckout(context.Background(), CheckoutRequest{OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if !checkout.Confirmed {
		t.Fatalf("expected cash checkout confirmed immediately")
	}
	if checkout.TransactionID != "COD_ord_1" {
		t.Fatalf("unexpected transaction id %s", checkout.TransactionID)
	}
	if checkout.RedirectURL != "" {
		t.Fatalf("cash checkout must not redirect")
	}

	if _, err := provider.VerifyNotification(context.Background(), Notification{}); err == nil {
		t.Fatalf("expected notifications to be unsupported")
	}
}
