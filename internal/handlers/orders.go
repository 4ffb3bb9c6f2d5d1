package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/payments"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/httpx"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/pagination"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/services"
)

const (
	defaultOrderPageLimit = 20
	maxOrderPageLimit     = 100
	maxOrderBodySize      = 64 * 1024
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:    {},
	domain.OrderStatusProcessing: {},
	domain.OrderStatusShipped:    {},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
	domain.OrderStatusReturned:   {},
}

var validPaymentStatuses = map[domain.PaymentStatus]struct{}{
	domain.PaymentStatusPending:           {},
	domain.PaymentStatusCompleted:         {},
	domain.PaymentStatusFailed:            {},
	domain.PaymentStatusRefunded:          {},
	domain.PaymentStatusPartiallyRefunded: {},
}

type placeOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type placeOrderRequest struct {
	Items           []placeOrderItemRequest `json:"items"`
	ShippingAddress addressPayload          `json:"shipping_address"`
	PaymentMethod   string                  `json:"payment_method"`
	Note            string                  `json:"note"`
	BuyerName       string                  `json:"buyer_name"`
	BuyerEmail      string                  `json:"buyer_email"`
}

type transitionOrderRequest struct {
	Status         string `json:"status"`
	Notes          string `json:"notes"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type editOrderRequest struct {
	ShippingAddress *addressPayload `json:"shipping_address"`
	Note            *string         `json:"note"`
}

type placedOrderResponse struct {
	Order    orderPayload    `json:"order"`
	Checkout checkoutPayload `json:"checkout"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

// OrderHandlers exposes order lifecycle endpoints for buyers, sellers, and admins.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the buyer-facing /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.editOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

// SellerRoutes registers the seller order endpoints.
func (h *OrderHandlers) SellerRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/status", h.transitionOrder)
}

// AdminRoutes registers the admin order endpoints.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/status", h.transitionOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.Delete("/{orderID}", h.deleteOrder)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	items := make([]services.PlaceOrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.PlaceOrderLine{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	cmd := services.PlaceOrderCommand{
		BuyerID:         actor.UserID,
		BuyerName:       strings.TrimSpace(req.BuyerName),
		BuyerEmail:      strings.TrimSpace(req.BuyerEmail),
		Items:           items,
		ShippingAddress: addressFromPayload(req.ShippingAddress),
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Note:            req.Note,
	}

	placed, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, placedOrderResponse{
		Order:    buildOrderPayload(placed.Order),
		Checkout: buildCheckoutPayload(placed.Checkout),
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	query := r.URL.Query()

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultLimit: defaultOrderPageLimit,
		MaxLimit:     maxOrderPageLimit,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	listQuery := services.OrderListQuery{
		Actor:      actor,
		SortBy:     strings.TrimSpace(query.Get("sort_by")),
		Pagination: services.Pagination{Page: params.Page, Limit: params.Limit},
	}

	switch {
	case actor.IsAdmin():
		listQuery.BuyerID = strings.TrimSpace(query.Get("buyer_id"))
		listQuery.SellerID = strings.TrimSpace(query.Get("seller_id"))
	case actor.IsSeller():
		listQuery.SellerID = actor.UserID
	default:
		listQuery.BuyerID = actor.UserID
	}

	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(raw)
		if _, ok := validOrderStatuses[status]; !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		listQuery.Status = append(listQuery.Status, status)
	}

	for _, raw := range parseFilterValues(query["payment_status"]) {
		status := domain.PaymentStatus(raw)
		if _, ok := validPaymentStatuses[status]; !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment_status must be a valid payment status", http.StatusBadRequest))
			return
		}
		listQuery.PaymentStatus = append(listQuery.PaymentStatus, status)
	}

	if raw := strings.TrimSpace(query.Get("start_date")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "start_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		listQuery.StartDate = &ts
	}
	if raw := strings.TrimSpace(query.Get("end_date")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "end_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		listQuery.EndDate = &ts
	}

	if raw := strings.ToLower(strings.TrimSpace(query.Get("sort_order"))); raw != "" {
		switch raw {
		case string(domain.SortAsc):
			listQuery.SortOrder = domain.SortAsc
		case string(domain.SortDesc):
			listQuery.SortOrder = domain.SortDesc
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sort_order must be asc or desc", http.StatusBadRequest))
			return
		}
	}

	page, err := h.orders.ListOrders(ctx, listQuery)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildOrderSummary))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actor)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req transitionOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if _, ok := validOrderStatuses[target]; !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID: orderID,
		Target:  target,
		Actor:   actor,
		Notes:   req.Notes,
		Tracking: services.TrackingUpdate{
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
			TrackingURL:    req.TrackingURL,
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Actor:   actor,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) editOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req editOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	cmd := services.EditOrderCommand{
		OrderID: orderID,
		Actor:   actor,
		Note:    req.Note,
	}
	if req.ShippingAddress != nil {
		addr := addressFromPayload(*req.ShippingAddress)
		cmd.ShippingAddress = &addr
	}

	order, err := h.orders.Edit(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if err := h.orders.Delete(ctx, services.DeleteOrderCommand{OrderID: orderID, Actor: actor}); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var transition *services.InvalidTransitionError
	if errors.As(err, &transition) {
		valid := make([]string, 0, len(transition.Valid))
		for _, status := range transition.Valid {
			valid = append(valid, string(status))
		}
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"valid_next_statuses": valid}))
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, payments.ErrUnsupportedProvider):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderMissingTracking):
		httpx.WriteError(ctx, w, httpx.NewError("tracking_required", "tracking number required before shipping", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "actor may not perform this order operation", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
