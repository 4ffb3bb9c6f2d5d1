package domain

import (
	"time"
)

// Pagination defines standard offset paging inputs for list operations.
type Pagination struct {
	Page  int
	Limit int
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Page wraps a list result with the total count for offset pagination.
type Page[T any] struct {
	Items      []T
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending marks a freshly placed order awaiting seller action.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing marks an order a seller has started fulfilling.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped marks an order handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered marks an order received by the buyer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled marks an order cancelled before shipment. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned marks an order sent back after shipment. Terminal.
	OrderStatusReturned OrderStatus = "returned"
)

// PaymentMethod enumerates the supported ways of paying for an order.
type PaymentMethod string

const (
	// PaymentMethodCOD collects payment in cash when the order is delivered.
	PaymentMethodCOD PaymentMethod = "cash_on_delivery"
	// PaymentMethodPayU redirects the buyer to the PayU hosted checkout.
	PaymentMethodPayU PaymentMethod = "pay_u"
	// PaymentMethodStripe charges the buyer through a Stripe payment intent.
	PaymentMethodStripe PaymentMethod = "stripe"
)

// PaymentStatus describes the settlement state of an order's payment.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// RefundStatus tracks the refund workflow attached to a payment.
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"
	RefundStatusRequested RefundStatus = "requested"
	RefundStatusApproved  RefundStatus = "approved"
	RefundStatusRejected  RefundStatus = "rejected"
	RefundStatusProcessed RefundStatus = "processed"
)

// Role enumerates the principal kinds recognised by the marketplace.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Address captures a shipping destination.
type Address struct {
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// OrderItem is a denormalised snapshot of a purchased product line. Price and
// identity fields are frozen at placement so later catalog edits cannot drift
// the order. Status tracks the line independently for multi-seller orders.
type OrderItem struct {
	ProductID string
	SellerID  string
	StoreID   string
	Name      string
	Image     string
	UnitPrice Money
	Quantity  int64
	Subtotal  Money
	Status    OrderStatus
}

// OrderTotals breaks down the amounts charged for an order. Total is derived
// and must be recomputed whenever a component changes.
type OrderTotals struct {
	Currency string
	Subtotal Money
	Discount Money
	Shipping Money
	Tax      Money
	Total    Money
}

// Recalculate rebuilds the derived Total from the component amounts.
func (t *OrderTotals) Recalculate() {
	t.Total = t.Subtotal - t.Discount + t.Shipping + t.Tax
}

// StatusChange records one entry of an order's status history.
type StatusChange struct {
	Status    OrderStatus
	ChangedAt time.Time
	ChangedBy string
	Notes     string
}

// PaymentInfo tracks how and whether an order was paid.
type PaymentInfo struct {
	Method        PaymentMethod
	Status        PaymentStatus
	TransactionID string
	GatewayRef    string
	PaidAt        *time.Time
	RefundStatus  RefundStatus
}

// ShippingDetails carries the destination and carrier tracking data.
type ShippingDetails struct {
	Address           Address
	Carrier           string
	TrackingNumber    string
	TrackingURL       string
	EstimatedDelivery *time.Time
}

// OrderNotes separates free-text notes by author role.
type OrderNotes struct {
	Buyer  string
	Seller string
	Admin  string
}

// OrderFlags marks orders needing operational attention.
type OrderFlags struct {
	RequiresAttention bool
	Priority          int
	IsFraud           bool
}

// Order is the aggregate root of the fulfilment lifecycle. Items may belong
// to different sellers; Status is the reduction of the line statuses.
type Order struct {
	ID            string
	OrderNumber   string
	BuyerID       string
	Items         []OrderItem
	Totals        OrderTotals
	Status        OrderStatus
	StatusHistory []StatusChange
	Payment       PaymentInfo
	Shipping      ShippingDetails
	Notes         OrderNotes
	Flags         OrderFlags
	StockReserved bool
	OrderedAt     time.Time
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SellerItems returns the order lines belonging to the given seller.
func (o *Order) SellerItems(sellerID string) []OrderItem {
	if o == nil {
		return nil
	}
	var items []OrderItem
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			items = append(items, item)
		}
	}
	return items
}

// ReduceStatus collapses the per-line statuses into the aggregate order
// status: uniform lines yield that status, mixed lines yield processing.
func ReduceStatus(items []OrderItem) OrderStatus {
	if len(items) == 0 {
		return OrderStatusPending
	}
	first := items[0].Status
	for _, item := range items[1:] {
		if item.Status != first {
			return OrderStatusProcessing
		}
	}
	return first
}

// ProductRating aggregates review scores for display.
type ProductRating struct {
	Average float64
	Count   int64
}

// Product is a sellable catalog entry owned by a seller's store. Stock only
// moves through the repository's conditional decrement and compensating
// increment, never by direct writes.
type Product struct {
	ID          string
	SellerID    string
	StoreID     string
	Name        string
	Slug        string
	Description string
	Price       Money
	Currency    string
	Stock       int64
	Images      []string
	Category    string
	IsActive    bool
	Rating      ProductRating
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StoreVerification enumerates the admin verification workflow states.
type StoreVerification string

const (
	StoreVerificationPending  StoreVerification = "pending"
	StoreVerificationVerified StoreVerification = "verified"
	StoreVerificationRejected StoreVerification = "rejected"
)

// StoreMetrics is the store's running ledger. TotalSales only moves through
// signed adjustments so every credit has a matching reversal path.
type StoreMetrics struct {
	TotalProducts int64
	TotalSales    Money
	AverageRating float64
	TotalReviews  int64
}

// StoreOrderRef links a fulfilled order line back to the store ledger.
type StoreOrderRef struct {
	OrderID   string
	BuyerID   string
	ProductID string
	Quantity  int64
	Amount    Money
}

// Store is a seller's storefront and sales ledger.
type Store struct {
	ID                 string
	SellerID           string
	Name               string
	Slug               string
	Description        string
	Logo               string
	Metrics            StoreMetrics
	Orders             []StoreOrderRef
	VerificationStatus StoreVerification
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CartItem is a buyer's intent to purchase a product.
type CartItem struct {
	ProductID string
	Quantity  int64
	AddedAt   time.Time
}

// Cart holds a buyer's pending items. Quantities are advisory until
// placement, which revalidates against live stock.
type Cart struct {
	ID        string
	BuyerID   string
	Items     []CartItem
	UpdatedAt time.Time
}

// User is the minimal principal profile the API needs for scoping.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
}
