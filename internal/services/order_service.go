package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/payments"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventStatusChanged    = "order.status_changed"
	orderEventCancelled        = "order.cancelled"
	orderEventPaymentConfirmed = "order.payment.confirmed"

	orderIDPrefix = "ord_"

	// Ledger keys make sales adjustments one-shot per order per store. The
	// credit lands when payment is secured (COD placement or a confirmed
	// gateway notification); the reversal key lets a cancellation back it
	// out exactly once.
	ledgerKeySale     = "sale"
	ledgerKeyReversal = "sale_reversal"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the actor may not see or mutate the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrProductUnavailable indicates a requested product is unknown or archived.
	ErrProductUnavailable = errors.New("order: product unavailable")
	// ErrInsufficientStock indicates a requested quantity exceeds available stock.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderMissingTracking rejects a move to shipped before a tracking
	// number is on file.
	ErrOrderMissingTracking = errors.New("order: tracking number required before shipping")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusReturned},
	domain.OrderStatusDelivered:  {domain.OrderStatusReturned},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// InvalidTransitionError reports an illegal status jump together with the
// transitions that would have been accepted from the current state.
type InvalidTransitionError struct {
	From  domain.OrderStatus
	To    domain.OrderStatus
	Valid []domain.OrderStatus
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order: invalid status transition %s -> %s", e.From, e.To)
}

// Is lets errors.Is match the ErrOrderInvalidState sentinel.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrOrderInvalidState
}

func canTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

func checkTransition(current, target domain.OrderStatus) error {
	if canTransition(current, target) {
		return nil
	}
	valid := slices.Clone(orderStateTransitions[current])
	return &InvalidTransitionError{From: current, To: target, Valid: valid}
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	BuyerID        string
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Stores      repositories.StoreRepository
	Carts       repositories.CartRepository
	Counters    repositories.CounterRepository
	Users       repositories.UserRepository
	Payments    *payments.Manager
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	stores     repositories.StoreRepository
	carts      repositories.CartRepository
	counters   repositories.CounterRepository
	users      repositories.UserRepository
	gateways   *payments.Manager
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
	sanitizer  *bluemonday.Policy
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("order service: store repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment manager is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		stores:     deps.Stores,
		carts:      deps.Carts,
		counters:   deps.Counters,
		users:      deps.Users,
		gateways:   deps.Payments,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		events:    deps.Events,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return PlacedOrder{}, fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return PlacedOrder{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	for _, line := range cmd.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return PlacedOrder{}, fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity < 1 {
			return PlacedOrder{}, fmt.Errorf("%w: item quantity must be at least 1", ErrOrderInvalidInput)
		}
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return PlacedOrder{}, err
	}
	method := cmd.PaymentMethod
	switch method {
	case domain.PaymentMethodCOD, domain.PaymentMethodPayU, domain.PaymentMethodStripe:
	default:
		return PlacedOrder{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, method)
	}

	now := s.now()

	items, totals, err := s.buildOrderItems(ctx, cmd.Items)
	if err != nil {
		return PlacedOrder{}, err
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return PlacedOrder{}, err
	}

	order := domain.Order{
		ID:          s.nextOrderID(),
		OrderNumber: number,
		BuyerID:     buyerID,
		Items:       items,
		Totals:      totals,
		Status:      domain.OrderStatusPending,
		StatusHistory: []domain.StatusChange{{
			Status:    domain.OrderStatusPending,
			ChangedAt: now,
			ChangedBy: buyerID,
			Notes:     "Order placed",
		}},
		Payment: domain.PaymentInfo{
			Method:       method,
			Status:       domain.PaymentStatusPending,
			RefundStatus: domain.RefundStatusNone,
		},
		Shipping:  domain.ShippingDetails{Address: cmd.ShippingAddress},
		Notes:     domain.OrderNotes{Buyer: s.sanitizeNote(cmd.Note)},
		OrderedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	buyerName, buyerEmail := s.buyerContact(ctx, buyerID, cmd.BuyerName, cmd.BuyerEmail)

	checkout, err := s.gateways.CreateCheckout(ctx, string(method), payments.CheckoutRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      int64(order.Totals.Total),
		Currency:    order.Totals.Currency,
		Customer: payments.Customer{
			ID:    buyerID,
			Name:  buyerName,
			Email: buyerEmail,
			Phone: strings.TrimSpace(cmd.ShippingAddress.Phone),
		},
	})
	if err != nil {
		return PlacedOrder{}, err
	}
	order.Payment.TransactionID = checkout.TransactionID

	if checkout.Confirmed {
		// Cash on delivery reserves stock, records the ledger links, and
		// credits each store's sales in the same transaction as the insert
		// so a failed line leaves no trace of the order.
		err = s.runInTx(ctx, func(txCtx context.Context) error {
			if err := s.products.ReserveStock(txCtx, stockLines(order.Items)); err != nil {
				return s.mapStockError(err)
			}
			order.StockReserved = true
			if err := s.orders.Insert(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}
			if err := s.recordStoreRefs(txCtx, order); err != nil {
				return err
			}
			return s.adjustStoreSales(txCtx, order, order.Items, ledgerKeySale, false)
		})
	} else {
		// Hosted gateways hold off on stock until the webhook confirms
		// payment; an abandoned checkout then strands nothing.
		err = s.runInTx(ctx, func(txCtx context.Context) error {
			if err := s.orders.Insert(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}
			return nil
		})
	}
	if err != nil {
		return PlacedOrder{}, err
	}

	s.clearCart(ctx, buyerID)

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		BuyerID:       order.BuyerID,
		CurrentStatus: order.Status,
		ActorID:       buyerID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"paymentMethod": string(method),
			"total":         int64(order.Totals.Total),
		},
	})

	return PlacedOrder{Order: order, Checkout: checkout}, nil
}

// buyerContact falls back to the stored user profile when the checkout
// request omits the buyer's name or email. Lookup failures are logged and
// leave the fields blank; hosted gateways tolerate an anonymous customer.
func (s *orderService) buyerContact(ctx context.Context, buyerID, name, email string) (string, string) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if (name != "" && email != "") || s.users == nil {
		return name, email
	}

	user, err := s.users.FindByID(ctx, buyerID)
	if err != nil {
		s.logger(ctx, "order.buyer_lookup_failed", map[string]any{
			"buyerId": buyerID,
			"error":   err.Error(),
		})
		return name, email
	}
	if name == "" {
		name = strings.TrimSpace(user.Name)
	}
	if email == "" {
		email = strings.TrimSpace(user.Email)
	}
	return name, email
}

func (s *orderService) ListOrders(ctx context.Context, q OrderListQuery) (domain.Page[Order], error) {
	filter := repositories.OrderListFilter{
		Status:        q.Status,
		PaymentStatus: q.PaymentStatus,
		OrderedAt:     domain.RangeQuery[time.Time]{From: q.StartDate, To: q.EndDate},
		SortBy:        q.SortBy,
		SortOrder:     q.SortOrder,
		Pagination:    q.Pagination,
	}

	switch q.Actor.Role {
	case domain.RoleAdmin:
		filter.BuyerID = strings.TrimSpace(q.BuyerID)
		filter.SellerID = strings.TrimSpace(q.SellerID)
	case domain.RoleSeller:
		filter.SellerID = q.Actor.UserID
	default:
		filter.BuyerID = q.Actor.UserID
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}

	if q.Actor.Role == domain.RoleSeller {
		for i := range page.Items {
			page.Items[i] = redactForSeller(page.Items[i], q.Actor.UserID)
		}
	}

	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	switch actor.Role {
	case domain.RoleAdmin:
		return order, nil
	case domain.RoleSeller:
		if len(order.SellerItems(actor.UserID)) == 0 {
			return Order{}, fmt.Errorf("%w: order has no items for seller", ErrOrderForbidden)
		}
		return redactForSeller(order, actor.UserID), nil
	default:
		if order.BuyerID != actor.UserID {
			return Order{}, fmt.Errorf("%w: order belongs to another buyer", ErrOrderForbidden)
		}
		return order, nil
	}
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.Target
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	switch cmd.Actor.Role {
	case domain.RoleAdmin, domain.RoleSeller:
	default:
		return Order{}, fmt.Errorf("%w: only sellers and admins may change order status", ErrOrderForbidden)
	}

	var updated Order
	var prevStatus domain.OrderStatus
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		now := s.now()
		prevStatus = order.Status

		applyTracking(&order.Shipping, cmd.Tracking)
		if target == domain.OrderStatusShipped && strings.TrimSpace(order.Shipping.TrackingNumber) == "" {
			return fmt.Errorf("%w: order %s", ErrOrderMissingTracking, order.ID)
		}

		var deliveredItems []domain.OrderItem
		if cmd.Actor.Role == domain.RoleAdmin {
			deliveredItems, err = applyAdminTransition(&order, target)
		} else {
			deliveredItems, err = applySellerTransition(&order, cmd.Actor.UserID, target)
		}
		if err != nil {
			return err
		}

		order.UpdatedAt = now
		// One history entry per accepted call. A seller moving only their
		// lines still leaves a trace even when the aggregate stays put.
		order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
			Status:    target,
			ChangedAt: now,
			ChangedBy: cmd.Actor.UserID,
			Notes:     strings.TrimSpace(cmd.Notes),
		})
		if order.Status != prevStatus && order.Status == domain.OrderStatusDelivered {
			order.DeliveredAt = &now
			if order.Payment.Method == domain.PaymentMethodCOD && order.Payment.Status == domain.PaymentStatusPending {
				order.Payment.Status = domain.PaymentStatusCompleted
				order.Payment.PaidAt = &now
			}
		}

		// Backstop for orders that never saw a payment-time credit; for the
		// common paths the sale key is already recorded and this skips.
		if err := s.adjustStoreSales(txCtx, order, deliveredItems, ledgerKeySale, false); err != nil {
			return err
		}

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}

		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		BuyerID:        updated.BuyerID,
		PreviousStatus: prevStatus,
		CurrentStatus:  updated.Status,
		ActorID:        cmd.Actor.UserID,
		OccurredAt:     updated.UpdatedAt,
		Metadata: map[string]any{
			"target": string(target),
		},
	})

	if cmd.Actor.Role == domain.RoleSeller {
		return redactForSeller(updated, cmd.Actor.UserID), nil
	}
	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.cancelOrDelete(ctx, cmd.OrderID, cmd.Actor, cmd.Reason, false)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) error {
	_, err := s.cancelOrDelete(ctx, cmd.OrderID, cmd.Actor, "", true)
	return err
}

func (s *orderService) cancelOrDelete(ctx context.Context, orderID string, actor Actor, reason string, remove bool) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var cancelled Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		switch actor.Role {
		case domain.RoleAdmin:
		default:
			if order.BuyerID != actor.UserID {
				return fmt.Errorf("%w: order belongs to another buyer", ErrOrderForbidden)
			}
		}

		if !slices.Contains(cancellableStatuses, order.Status) {
			return &InvalidTransitionError{
				From:  order.Status,
				To:    domain.OrderStatusCancelled,
				Valid: slices.Clone(orderStateTransitions[order.Status]),
			}
		}

		// Reverse placement effects exactly: every reserved line goes back,
		// every store ledger link comes out, and the sales credited when
		// payment was secured are backed out under the reversal key.
		if order.StockReserved {
			if err := s.products.RestoreStock(txCtx, stockLines(order.Items)); err != nil {
				return s.mapStockError(err)
			}
			if err := s.removeStoreRefs(txCtx, order); err != nil {
				return err
			}
			if err := s.adjustStoreSales(txCtx, order, order.Items, ledgerKeyReversal, true); err != nil {
				return err
			}
		}

		now := s.now()
		order.UpdatedAt = now

		if remove {
			if err := s.orders.Delete(txCtx, order.ID); err != nil {
				return s.mapRepositoryError(err)
			}
			cancelled = order
			return nil
		}

		notes := strings.TrimSpace(reason)
		if actor.Role == domain.RoleAdmin && notes == "" {
			notes = "Cancelled by admin"
		}
		for i := range order.Items {
			order.Items[i].Status = domain.OrderStatusCancelled
		}
		order.Status = domain.OrderStatusCancelled
		order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
			Status:    domain.OrderStatusCancelled,
			ChangedAt: now,
			ChangedBy: actor.UserID,
			Notes:     notes,
		})

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCancelled,
		OrderID:       cancelled.ID,
		OrderNumber:   cancelled.OrderNumber,
		BuyerID:       cancelled.BuyerID,
		CurrentStatus: domain.OrderStatusCancelled,
		ActorID:       actor.UserID,
		OccurredAt:    cancelled.UpdatedAt,
		Metadata: map[string]any{
			"deleted": remove,
		},
	})

	return cancelled, nil
}

func (s *orderService) Edit(ctx context.Context, cmd EditOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.ShippingAddress == nil && cmd.Note == nil {
		return Order{}, fmt.Errorf("%w: nothing to edit", ErrOrderInvalidInput)
	}

	var updated Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.BuyerID != cmd.Actor.UserID && cmd.Actor.Role != domain.RoleAdmin {
			return fmt.Errorf("%w: order belongs to another buyer", ErrOrderForbidden)
		}
		if !slices.Contains(cancellableStatuses, order.Status) {
			return fmt.Errorf("%w: order status %q is no longer editable", ErrOrderInvalidState, order.Status)
		}

		if cmd.ShippingAddress != nil {
			merged := mergeAddress(order.Shipping.Address, *cmd.ShippingAddress)
			if err := validateShippingAddress(merged); err != nil {
				return err
			}
			order.Shipping.Address = merged
		}
		if cmd.Note != nil {
			order.Notes.Buyer = s.sanitizeNote(*cmd.Note)
		}
		order.UpdatedAt = s.now()

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return updated, nil
}

// ConfirmGatewayPayment applies a verified gateway notification to the order.
// Success reserves stock now; if stock vanished since placement the payment
// is flagged for refund and the order cancelled. Replayed notifications are
// no-ops.
func (s *orderService) ConfirmGatewayPayment(ctx context.Context, cmd GatewayConfirmationCommand) (Order, error) {
	conf := cmd.Confirmation
	if strings.TrimSpace(conf.TransactionID) == "" && strings.TrimSpace(conf.OrderID) == "" {
		return Order{}, fmt.Errorf("%w: confirmation carries no order reference", ErrOrderInvalidInput)
	}

	var updated Order
	var eventType string
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.findConfirmedOrder(txCtx, conf)
		if err != nil {
			return err
		}

		now := s.now()

		switch conf.Status {
		case payments.StatusSucceeded:
			if order.Payment.Status == domain.PaymentStatusCompleted {
				// Replay of a notification already applied.
				updated = order
				return nil
			}
			order.Payment.Status = domain.PaymentStatusCompleted
			order.Payment.PaidAt = &now
			if conf.Raw != nil {
				order.Payment.GatewayRef = conf.Raw["mihpayid"]
			}

			reserveErr := s.products.ReserveStock(txCtx, stockLines(order.Items))
			if reserveErr != nil {
				// Paid but unfulfillable. Cancel and queue the refund.
				order.Payment.RefundStatus = domain.RefundStatusRequested
				for i := range order.Items {
					order.Items[i].Status = domain.OrderStatusCancelled
				}
				order.Status = domain.OrderStatusCancelled
				order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
					Status:    domain.OrderStatusCancelled,
					ChangedAt: now,
					Notes:     "Stock unavailable after payment, refund requested",
				})
				eventType = orderEventCancelled
				s.logger(txCtx, "order.payment.stock_conflict", map[string]any{
					"orderId": order.ID,
					"txnId":   conf.TransactionID,
					"error":   reserveErr.Error(),
				})
			} else {
				order.StockReserved = true
				if err := s.recordStoreRefs(txCtx, order); err != nil {
					return err
				}
				if err := s.adjustStoreSales(txCtx, order, order.Items, ledgerKeySale, false); err != nil {
					return err
				}
				eventType = orderEventPaymentConfirmed
			}
		case payments.StatusFailed:
			if order.Payment.Status == domain.PaymentStatusFailed {
				updated = order
				return nil
			}
			order.Payment.Status = domain.PaymentStatusFailed
			eventType = orderEventPaymentConfirmed
		default:
			updated = order
			return nil
		}

		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if eventType != "" {
		s.publishEvent(ctx, OrderEvent{
			Type:          eventType,
			OrderID:       updated.ID,
			OrderNumber:   updated.OrderNumber,
			BuyerID:       updated.BuyerID,
			CurrentStatus: updated.Status,
			OccurredAt:    updated.UpdatedAt,
			Metadata: map[string]any{
				"provider":      conf.Provider,
				"transactionId": conf.TransactionID,
				"paymentStatus": string(updated.Payment.Status),
			},
		})
	}

	return updated, nil
}

// --- helpers ----------------------------------------------------------------

func (s *orderService) findConfirmedOrder(ctx context.Context, conf payments.Confirmation) (Order, error) {
	if id := strings.TrimSpace(conf.OrderID); id != "" {
		order, err := s.orders.FindByID(ctx, id)
		if err == nil {
			return order, nil
		}
		if !errors.Is(s.mapRepositoryError(err), ErrOrderNotFound) {
			return Order{}, s.mapRepositoryError(err)
		}
	}
	if txn := strings.TrimSpace(conf.TransactionID); txn != "" {
		order, err := s.orders.FindByTransactionID(ctx, txn)
		if err != nil {
			return Order{}, s.mapRepositoryError(err)
		}
		return order, nil
	}
	return Order{}, fmt.Errorf("%w: no order matches confirmation", ErrOrderNotFound)
}

// buildOrderItems loads and freezes the product snapshot for each requested
// line. Availability here is advisory; the conditional decrement at
// reservation time is the authority.
func (s *orderService) buildOrderItems(ctx context.Context, lines []PlaceOrderLine) ([]domain.OrderItem, domain.OrderTotals, error) {
	items := make([]domain.OrderItem, 0, len(lines))
	totals := domain.OrderTotals{Currency: domain.DefaultCurrency}

	for _, line := range lines {
		product, err := s.products.FindByID(ctx, strings.TrimSpace(line.ProductID))
		if err != nil {
			mapped := s.mapRepositoryError(err)
			if errors.Is(mapped, ErrOrderNotFound) {
				return nil, domain.OrderTotals{}, fmt.Errorf("%w: product %s", ErrProductUnavailable, line.ProductID)
			}
			return nil, domain.OrderTotals{}, mapped
		}
		if !product.IsActive {
			return nil, domain.OrderTotals{}, fmt.Errorf("%w: product %s is not active", ErrProductUnavailable, product.ID)
		}
		if product.Stock < line.Quantity {
			return nil, domain.OrderTotals{}, fmt.Errorf("%w: product %s", ErrInsufficientStock, product.ID)
		}

		subtotal := product.Price * domain.Money(line.Quantity)
		image := ""
		if len(product.Images) > 0 {
			image = product.Images[0]
		}
		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			SellerID:  product.SellerID,
			StoreID:   product.StoreID,
			Name:      product.Name,
			Image:     image,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
			Subtotal:  subtotal,
			Status:    domain.OrderStatusPending,
		})
		totals.Subtotal += subtotal
		if product.Currency != "" {
			totals.Currency = product.Currency
		}
	}

	totals.Recalculate()
	return items, totals, nil
}

// applyAdminTransition moves the whole order, every line included, and
// returns the lines that just became delivered.
func applyAdminTransition(order *Order, target domain.OrderStatus) ([]domain.OrderItem, error) {
	if err := checkTransition(order.Status, target); err != nil {
		return nil, err
	}
	var delivered []domain.OrderItem
	for i := range order.Items {
		prev := order.Items[i].Status
		order.Items[i].Status = target
		if target == domain.OrderStatusDelivered && prev != domain.OrderStatusDelivered {
			delivered = append(delivered, order.Items[i])
		}
	}
	order.Status = target
	return delivered, nil
}

// applySellerTransition moves only the seller's lines, then recomputes the
// aggregate status from all lines.
func applySellerTransition(order *Order, sellerID string, target domain.OrderStatus) ([]domain.OrderItem, error) {
	owned := order.SellerItems(sellerID)
	if len(owned) == 0 {
		return nil, fmt.Errorf("%w: order has no items for seller", ErrOrderForbidden)
	}

	var delivered []domain.OrderItem
	for i := range order.Items {
		if order.Items[i].SellerID != sellerID {
			continue
		}
		if err := checkTransition(order.Items[i].Status, target); err != nil {
			return nil, err
		}
		prev := order.Items[i].Status
		order.Items[i].Status = target
		if target == domain.OrderStatusDelivered && prev != domain.OrderStatusDelivered {
			delivered = append(delivered, order.Items[i])
		}
	}

	order.Status = domain.ReduceStatus(order.Items)
	return delivered, nil
}

// adjustStoreSales applies each store's slice of the given items to its sales
// total exactly once. The ledger key makes replays a no-op instead of a
// double adjustment, so a delivery-time credit after a payment-time credit
// simply skips.
func (s *orderService) adjustStoreSales(ctx context.Context, order Order, items []domain.OrderItem, key string, negate bool) error {
	amounts := make(map[string]domain.Money)
	for _, item := range items {
		amounts[item.StoreID] += item.Subtotal
	}
	for storeID, amount := range amounts {
		if negate {
			amount = -amount
		}
		err := s.stores.AdjustSales(ctx, storeID, order.ID, key, amount)
		if err != nil {
			var ledgerErr *repositories.LedgerError
			if errors.As(err, &ledgerErr) && ledgerErr.Code == repositories.LedgerErrorDuplicate {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *orderService) recordStoreRefs(ctx context.Context, order Order) error {
	refs := make(map[string][]domain.StoreOrderRef)
	for _, item := range order.Items {
		refs[item.StoreID] = append(refs[item.StoreID], domain.StoreOrderRef{
			OrderID:   order.ID,
			BuyerID:   order.BuyerID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Amount:    item.Subtotal,
		})
	}
	for storeID, storeRefs := range refs {
		if err := s.stores.RecordFulfilledOrder(ctx, storeID, storeRefs); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderService) removeStoreRefs(ctx context.Context, order Order) error {
	seen := make(map[string]bool)
	for _, item := range order.Items {
		if seen[item.StoreID] {
			continue
		}
		seen[item.StoreID] = true
		if err := s.stores.RemoveOrderRefs(ctx, item.StoreID, order.ID); err != nil {
			return err
		}
	}
	return nil
}

// clearCart is best-effort after placement; a leftover cart is harmless.
func (s *orderService) clearCart(ctx context.Context, buyerID string) {
	if s.carts == nil {
		return
	}
	if err := s.carts.Clear(ctx, buyerID); err != nil {
		s.logger(ctx, "order.cart.clear.failed", map[string]any{
			"buyerId": buyerID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) sanitizeNote(note string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(note))
}

func (s *orderService) mapStockError(err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, stockErr.ProductID)
		case repositories.StockErrorProductNotFound, repositories.StockErrorProductInactive:
			return fmt.Errorf("%w: product %s", ErrProductUnavailable, stockErr.ProductID)
		}
	}
	return err
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("LS-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": string(event.CurrentStatus),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func stockLines(items []domain.OrderItem) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, repositories.StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// redactForSeller strips other sellers' lines from the order view. Totals
// stay order-level; the seller's slice is visible through the line subtotals.
func redactForSeller(order Order, sellerID string) Order {
	order.Items = order.SellerItems(sellerID)
	return order
}

func validateShippingAddress(addr domain.Address) error {
	if strings.TrimSpace(addr.FullName) == "" {
		return fmt.Errorf("%w: shipping full name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: shipping address line is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: shipping city is required", ErrOrderInvalidInput)
	}
	phone := strings.TrimSpace(addr.Phone)
	if phone == "" || !phonePattern.MatchString(phone) {
		return fmt.Errorf("%w: shipping phone must match %s", ErrOrderInvalidInput, phonePattern.String())
	}
	return nil
}

// applyTracking overlays the provided tracking fields onto the shipment.
// Blank fields leave the stored values alone.
func applyTracking(shipping *domain.ShippingDetails, upd TrackingUpdate) {
	if v := strings.TrimSpace(upd.Carrier); v != "" {
		shipping.Carrier = v
	}
	if v := strings.TrimSpace(upd.TrackingNumber); v != "" {
		shipping.TrackingNumber = v
	}
	if v := strings.TrimSpace(upd.TrackingURL); v != "" {
		shipping.TrackingURL = v
	}
}

func mergeAddress(base, patch domain.Address) domain.Address {
	merged := base
	if v := strings.TrimSpace(patch.FullName); v != "" {
		merged.FullName = v
	}
	if v := strings.TrimSpace(patch.Phone); v != "" {
		merged.Phone = v
	}
	if v := strings.TrimSpace(patch.Line1); v != "" {
		merged.Line1 = v
	}
	if v := strings.TrimSpace(patch.Line2); v != "" {
		merged.Line2 = v
	}
	if v := strings.TrimSpace(patch.City); v != "" {
		merged.City = v
	}
	if v := strings.TrimSpace(patch.State); v != "" {
		merged.State = v
	}
	if v := strings.TrimSpace(patch.PostalCode); v != "" {
		merged.PostalCode = v
	}
	if v := strings.TrimSpace(patch.Country); v != "" {
		merged.Country = v
	}
	return merged
}
