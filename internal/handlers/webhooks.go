package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/payments"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/httpx"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/services"
)

// Gateways post webhook payloads of bounded size; anything above this is
// rejected before verification.
const maxWebhookBodySize = 1 << 20

// WebhookHandlers receives asynchronous payment gateway notifications,
// verifies their integrity, and feeds confirmed outcomes into the order
// lifecycle.
type WebhookHandlers struct {
	payments *payments.Manager
	orders   services.OrderService
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(manager *payments.Manager, orders services.OrderService) *WebhookHandlers {
	return &WebhookHandlers{payments: manager, orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payu", h.handlePayU)
	r.Post("/stripe", h.handleStripe)
}

// handlePayU processes the form-encoded PayU callback. The hash is verified
// before any state change; a mismatch never touches the order.
func (h *WebhookHandlers) handlePayU(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed form payload", http.StatusBadRequest))
		return
	}

	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}

	confirmation, err := h.payments.VerifyNotification(ctx, string(domain.PaymentMethodPayU), payments.Notification{Params: params})
	if err != nil {
		writeWebhookError(ctx, w, err)
		return
	}

	h.confirm(ctx, w, confirmation)
}

// handleStripe processes the Stripe webhook. The raw body and the
// Stripe-Signature header go to the provider untouched so signature
// verification sees exactly what Stripe signed.
func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read payload", http.StatusBadRequest))
		return
	}
	if len(payload) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	signature := strings.TrimSpace(r.Header.Get("Stripe-Signature"))
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("integrity_mismatch", "missing signature header", http.StatusForbidden))
		return
	}

	confirmation, err := h.payments.VerifyNotification(ctx, string(domain.PaymentMethodStripe), payments.Notification{
		Payload:   payload,
		Signature: signature,
	})
	if err != nil {
		writeWebhookError(ctx, w, err)
		return
	}

	h.confirm(ctx, w, confirmation)
}

func (h *WebhookHandlers) confirm(ctx context.Context, w http.ResponseWriter, confirmation payments.Confirmation) {
	order, err := h.orders.ConfirmGatewayPayment(ctx, services.GatewayConfirmationCommand{Confirmation: confirmation})
	if err != nil {
		writeWebhookError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"received":       true,
		"order_id":       order.ID,
		"order_status":   string(order.Status),
		"payment_status": string(order.Payment.Status),
	})
}

func writeWebhookError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payments.ErrIntegrityMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("integrity_mismatch", "notification failed integrity verification", http.StatusForbidden))
	case errors.Is(err, payments.ErrUnsupportedProvider):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_provider", "payment provider not configured", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process notification", http.StatusInternalServerError))
	}
}
