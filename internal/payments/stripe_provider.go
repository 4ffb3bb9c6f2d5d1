package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Clients       *stripeClients
}

// StripeProvider implements the Provider contract using payment intents.
type StripeProvider struct {
	api           stripeClients
	webhookSecret string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           clients,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckout creates a payment intent for the order and returns its
// client secret in the form fields for the client SDK to confirm.
func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if p == nil {
		return Checkout{}, errors.New("stripe: provider is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return Checkout{}, errors.New("stripe: order id is required")
	}
	if req.Amount <= 0 {
		return Checkout{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order_" + orderID)
	params.Metadata = map[string]string{
		"orderId": orderID,
		"buyerId": req.Customer.ID,
	}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       orderID,
		"amount":        req.Amount,
	})

	return Checkout{
		Provider:      "stripe",
		TransactionID: intent.ID,
		FormFields: map[string]string{
			"client_secret": intent.ClientSecret,
		},
		ExpiresAt: p.clock().Add(30 * time.Minute),
	}, nil
}

// VerifyNotification validates the webhook signature and normalises payment
// intent events. An invalid signature is an integrity mismatch.
func (p *StripeProvider) VerifyNotification(ctx context.Context, n Notification) (Confirmation, error) {
	if p == nil {
		return Confirmation{}, errors.New("stripe: provider is nil")
	}
	if p.webhookSecret == "" {
		return Confirmation{}, errors.New("stripe: webhook secret is not configured")
	}

	event, err := webhook.ConstructEvent(n.Payload, n.Signature, p.webhookSecret)
	if err != nil {
		p.logger(ctx, "payments.stripe.notification.integrity_mismatch", map[string]any{
			"error": err.Error(),
		})
		return Confirmation{}, fmt.Errorf("%w: %v", ErrIntegrityMismatch, err)
	}

	var status Status
	switch event.Type {
	case "payment_intent.succeeded":
		status = StatusSucceeded
	case "payment_intent.payment_failed":
		status = StatusFailed
	default:
		return Confirmation{}, fmt.Errorf("stripe: unhandled event type %s", event.Type)
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return Confirmation{}, fmt.Errorf("stripe: decode payment intent: %w", err)
	}

	orderID := strings.TrimSpace(intent.Metadata["orderId"])
	if orderID == "" {
		return Confirmation{}, errors.New("stripe: event intent carries no order id")
	}

	p.logger(ctx, "payments.stripe.notification.verified", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       orderID,
		"type":          string(event.Type),
	})

	return Confirmation{
		Provider:      "stripe",
		TransactionID: intent.ID,
		OrderID:       orderID,
		Status:        status,
		Amount:        fmt.Sprintf("%d", intent.Amount),
	}, nil
}

// Refund issues a refund against the payment intent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if p == nil {
		return RefundResult{}, errors.New("stripe: provider is nil")
	}
	intentID := strings.TrimSpace(req.TransactionID)
	if intentID == "" {
		return RefundResult{}, errors.New("stripe: transaction id is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe: create refund: %w", err)
	}

	status := StatusPending
	var refundedAt *time.Time
	if refund.Status == stripe.RefundStatusSucceeded {
		status = StatusRefunded
		at := p.clock()
		refundedAt = &at
	}

	p.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"refund":        refund.ID,
		"paymentIntent": intentID,
		"status":        string(refund.Status),
	})

	return RefundResult{
		Provider:   "stripe",
		RefundID:   refund.ID,
		Status:     status,
		RefundedAt: refundedAt,
	}, nil
}
