package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/payments"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/auth"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/services"
)

type stubOrderService struct {
	placeFn      func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error)
	listFn       func(ctx context.Context, q services.OrderListQuery) (domain.Page[domain.Order], error)
	getFn        func(ctx context.Context, orderID string, actor services.Actor) (domain.Order, error)
	transitionFn func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error)
	cancelFn     func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	deleteFn     func(ctx context.Context, cmd services.DeleteOrderCommand) error
	editFn       func(ctx context.Context, cmd services.EditOrderCommand) (domain.Order, error)
	confirmFn    func(ctx context.Context, cmd services.GatewayConfirmationCommand) (domain.Order, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
	if s.placeFn == nil {
		return services.PlacedOrder{}, nil
	}
	return s.placeFn(ctx, cmd)
}

func (s *stubOrderService) ListOrders(ctx context.Context, q services.OrderListQuery) (domain.Page[domain.Order], error) {
	if s.listFn == nil {
		return domain.Page[domain.Order]{}, nil
	}
	return s.listFn(ctx, q)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, actor services.Actor) (domain.Order, error) {
	if s.getFn == nil {
		return domain.Order{}, nil
	}
	return s.getFn(ctx, orderID, actor)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
	if s.transitionFn == nil {
		return domain.Order{}, nil
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn == nil {
		return domain.Order{}, nil
	}
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) Delete(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, cmd)
}

func (s *stubOrderService) Edit(ctx context.Context, cmd services.EditOrderCommand) (domain.Order, error) {
	if s.editFn == nil {
		return domain.Order{}, nil
	}
	return s.editFn(ctx, cmd)
}

func (s *stubOrderService) ConfirmGatewayPayment(ctx context.Context, cmd services.GatewayConfirmationCommand) (domain.Order, error) {
	if s.confirmFn == nil {
		return domain.Order{}, nil
	}
	return s.confirmFn(ctx, cmd)
}

var _ services.OrderService = (*stubOrderService)(nil)

func withTestIdentity(r *http.Request, userID string, role domain.Role) *http.Request {
	identity := &auth.Identity{UserID: userID, Role: string(role)}
	return r.WithContext(auth.WithIdentity(r.Context(), identity))
}

func buyerOrderRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(svc).Routes(r)
	return r
}

func testOrder() domain.Order {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          "ord_1",
		OrderNumber: "LS-2025-000001",
		BuyerID:     "usr_buyer",
		Status:      domain.OrderStatusPending,
		Items: []domain.OrderItem{{
			ProductID: "prd_1",
			SellerID:  "usr_seller",
			StoreID:   "str_1",
			Name:      "Fancy Lamp",
			UnitPrice: 1999,
			Quantity:  2,
			Subtotal:  3998,
			Status:    domain.OrderStatusPending,
		}},
		Totals: domain.OrderTotals{
			Currency: "inr",
			Subtotal: 3998,
			Total:    3998,
		},
		Payment: domain.PaymentInfo{
			Method: domain.PaymentMethodCOD,
			Status: domain.PaymentStatusPending,
		},
		OrderedAt: now,
		CreatedAt: now,
	}
}

func TestPlaceOrderCreatesOrderWithCheckout(t *testing.T) {
	var received services.PlaceOrderCommand
	svc := &stubOrderService{
		placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
			received = cmd
			return services.PlacedOrder{
				Order: testOrder(),
				Checkout: payments.Checkout{
					Provider:      "cash_on_delivery",
					TransactionID: "COD_ord_1",
					Confirmed:     true,
				},
			}, nil
		},
	}

	body := `{
		"items": [{"product_id": "prd_1", "quantity": 2}],
		"shipping_address": {
			"full_name": "Asha Rao",
			"phone": "+911234567890",
			"line1": "12 Lake Road",
			"city": "Pune",
			"postal_code": "411001",
			"country": "IN"
		},
		"payment_method": "cash_on_delivery"
	}`

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req = withTestIdentity(req, "usr_buyer", domain.RoleBuyer)
	rr := httptest.NewRecorder()

	buyerOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if received.BuyerID != "usr_buyer" {
		t.Fatalf("expected buyer from identity, got %q", received.BuyerID)
	}
	if received.PaymentMethod != domain.PaymentMethodCOD {
		t.Fatalf("unexpected payment method %q", received.PaymentMethod)
	}
	if len(received.Items) != 1 || received.Items[0].ProductID != "prd_1" || received.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", received.Items)
	}
	if received.ShippingAddress.City != "Pune" {
		t.Fatalf("unexpected address %+v", received.ShippingAddress)
	}

	var payload struct {
		Order struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Totals struct {
				Total        int64  `json:"total"`
				TotalDisplay string `json:"total_display"`
			} `json:"totals"`
		} `json:"order"`
		Checkout struct {
			Provider  string `json:"provider"`
			Confirmed bool   `json:"confirmed"`
		} `json:"checkout"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Order.ID != "ord_1" || payload.Order.Status != "pending" {
		t.Fatalf("unexpected order payload %+v", payload.Order)
	}
	if payload.Order.Totals.Total != 3998 || payload.Order.Totals.TotalDisplay != "INR 39.98" {
		t.Fatalf("unexpected totals payload %+v", payload.Order.Totals)
	}
	if payload.Checkout.Provider != "cash_on_delivery" || !payload.Checkout.Confirmed {
		t.Fatalf("unexpected checkout payload %+v", payload.Checkout)
	}
}

func TestPlaceOrderRequiresAuthentication(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"items":[]}`))
	rr := httptest.NewRecorder()

	buyerOrderRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestListOrdersScopesBuyerToOwnOrders(t *testing.T) {
	var received services.OrderListQuery
	svc := &stubOrderService{
		listFn: func(_ context.Context, q services.OrderListQuery) (domain.Page[domain.Order], error) {
			received = q
			return domain.Page[domain.Order]{
				Items: []domain.Order{testOrder()},
				Total: 1, Page: 1, Limit: 20, TotalPages: 1,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/?status=pending,processing", nil)
	req = withTestIdentity(req, "usr_buyer", domain.RoleBuyer)
	rr := httptest.NewRecorder()

	buyerOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.BuyerID != "usr_buyer" || received.SellerID != "" {
		t.Fatalf("expected buyer scoping, got %+v", received)
	}
	if len(received.Status) != 2 || received.Status[0] != domain.OrderStatusPending {
		t.Fatalf("unexpected status filter %v", received.Status)
	}

	var payload struct {
		Items []orderSummaryPayload `json:"items"`
		Total int64                 `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Total != 1 || len(payload.Items) != 1 || payload.Items[0].OrderNumber != "LS-2025-000001" {
		t.Fatalf("unexpected list payload %+v", payload)
	}
}

func TestListOrdersSellerScope(t *testing.T) {
	var received services.OrderListQuery
	svc := &stubOrderService{
		listFn: func(_ context.Context, q services.OrderListQuery) (domain.Page[domain.Order], error) {
			received = q
			return domain.Page[domain.Order]{}, nil
		},
	}

	r := chi.NewRouter()
	NewOrderHandlers(svc).SellerRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = withTestIdentity(req, "usr_seller", domain.RoleSeller)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if received.SellerID != "usr_seller" || received.BuyerID != "" {
		t.Fatalf("expected seller scoping, got %+v", received)
	}
}

func TestListOrdersRejectsInvalidStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?status=teleported", nil)
	req = withTestIdentity(req, "usr_buyer", domain.RoleBuyer)
	rr := httptest.NewRecorder()

	buyerOrderRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetOrderMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", services.ErrOrderNotFound, http.StatusNotFound},
		{"forbidden", services.ErrOrderForbidden, http.StatusForbidden},
		{"conflict", services.ErrOrderConflict, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				getFn: func(context.Context, string, services.Actor) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}

			req := httptest.NewRequest(http.MethodGet, "/ord_1", nil)
			req = withTestIdentity(req, "usr_buyer", domain.RoleBuyer)
			rr := httptest.NewRecorder()

			buyerOrderRouter(svc).ServeHTTP(rr, req)

			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
		})
	}
}

func TestTransitionOrderReportsValidNextStatuses(t *testing.T) {
	svc := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (domain.Order, error) {
			return domain.Order{}, &services.InvalidTransitionError{
				From:  domain.OrderStatusShipped,
				To:    domain.OrderStatusPending,
				Valid: []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusReturned},
			}
		},
	}

	r := chi.NewRouter()
	NewOrderHandlers(svc).SellerRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/ord_1/status", bytes.NewBufferString(`{"status":"pending"}`))
	req = withTestIdentity(req, "usr_seller", domain.RoleSeller)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var payload struct {
		Error             string   `json:"error"`
		ValidNextStatuses []string `json:"valid_next_statuses"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Error != "order_invalid_state" {
		t.Fatalf("unexpected error code %q", payload.Error)
	}
	if len(payload.ValidNextStatuses) != 2 || payload.ValidNextStatuses[0] != "delivered" {
		t.Fatalf("unexpected valid statuses %v", payload.ValidNextStatuses)
	}
}

func TestTransitionOrderShippingWithoutTracking(t *testing.T) {
	svc := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderMissingTracking
		},
	}

	r := chi.NewRouter()
	NewOrderHandlers(svc).SellerRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/ord_1/status", bytes.NewBufferString(`{"status":"shipped"}`))
	req = withTestIdentity(req, "usr_seller", domain.RoleSeller)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Error != "tracking_required" {
		t.Fatalf("unexpected error code %q", payload.Error)
	}
}

func TestTransitionOrderForwardsTracking(t *testing.T) {
	var received services.OrderStatusTransitionCommand
	svc := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
			received = cmd
			order := testOrder()
			order.Status = domain.OrderStatusShipped
			return order, nil
		},
	}

	r := chi.NewRouter()
	NewOrderHandlers(svc).SellerRoutes(r)

	body := `{"status":"shipped","carrier":"Delhivery","tracking_number":"DL42","tracking_url":"https://www.delhivery.com/track/DL42"}`
	req := httptest.NewRequest(http.MethodPost, "/ord_1/status", bytes.NewBufferString(body))
	req = withTestIdentity(req, "usr_seller", domain.RoleSeller)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.Tracking.Carrier != "Delhivery" || received.Tracking.TrackingNumber != "DL42" {
		t.Fatalf("tracking not forwarded: %+v", received.Tracking)
	}
	if received.Tracking.TrackingURL != "https://www.delhivery.com/track/DL42" {
		t.Fatalf("tracking url not forwarded: %+v", received.Tracking)
	}
}

func TestTransitionOrderRejectsUnknownStatus(t *testing.T) {
	r := chi.NewRouter()
	NewOrderHandlers(&stubOrderService{}).SellerRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/ord_1/status", bytes.NewBufferString(`{"status":"lost"}`))
	req = withTestIdentity(req, "usr_seller", domain.RoleSeller)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCancelOrderAllowsEmptyBody(t *testing.T) {
	var received services.CancelOrderCommand
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			received = cmd
			order := testOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/ord_1/cancel", nil)
	req = withTestIdentity(req, "usr_buyer", domain.RoleBuyer)
	rr := httptest.NewRecorder()

	buyerOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.OrderID != "ord_1" || received.Actor.UserID != "usr_buyer" {
		t.Fatalf("unexpected cancel command %+v", received)
	}
}

func TestDeleteOrderReturnsNoContent(t *testing.T) {
	var received services.DeleteOrderCommand
	svc := &stubOrderService{
		deleteFn: func(_ context.Context, cmd services.DeleteOrderCommand) error {
			received = cmd
			return nil
		},
	}

	r := chi.NewRouter()
	NewOrderHandlers(svc).AdminRoutes(r)

	req := httptest.NewRequest(http.MethodDelete, "/ord_1", nil)
	req = withTestIdentity(req, "usr_admin", domain.RoleAdmin)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if received.OrderID != "ord_1" || !received.Actor.IsAdmin() {
		t.Fatalf("unexpected delete command %+v", received)
	}
}

func TestEditOrderPatchesShippingAddress(t *testing.T) {
	var received services.EditOrderCommand
	svc := &stubOrderService{
		editFn: func(_ context.Context, cmd services.EditOrderCommand) (domain.Order, error) {
			received = cmd
			return testOrder(), nil
		},
	}

	body := `{"shipping_address": {"full_name": "Asha Rao", "phone": "+911234567890", "line1": "44 Hill St", "city": "Mumbai", "postal_code": "400001", "country": "IN"}}`
	req := httptest.NewRequest(http.MethodPatch, "/ord_1", bytes.NewBufferString(body))
	req = withTestIdentity(req, "usr_buyer", domain.RoleBuyer)
	rr := httptest.NewRecorder()

	buyerOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.ShippingAddress == nil || received.ShippingAddress.City != "Mumbai" {
		t.Fatalf("expected shipping address patch, got %+v", received.ShippingAddress)
	}
	if received.Note != nil {
		t.Fatalf("expected nil note patch, got %v", *received.Note)
	}
}
