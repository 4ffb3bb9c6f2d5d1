package services

import (
	"context"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/payments"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Money              = domain.Money
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderTotals        = domain.OrderTotals
	OrderStatus        = domain.OrderStatus
	StatusChange       = domain.StatusChange
	PaymentInfo        = domain.PaymentInfo
	PaymentMethod      = domain.PaymentMethod
	PaymentStatus      = domain.PaymentStatus
	RefundStatus       = domain.RefundStatus
	ShippingDetails    = domain.ShippingDetails
	OrderNotes         = domain.OrderNotes
	OrderFlags         = domain.OrderFlags
	Address            = domain.Address
	Product            = domain.Product
	Store              = domain.Store
	StoreMetrics       = domain.StoreMetrics
	StoreOrderRef      = domain.StoreOrderRef
	StoreVerification  = domain.StoreVerification
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	User               = domain.User
	Role               = domain.Role
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the authenticated principal performing an operation.
// Services enforce visibility and mutation rules from the role, never the
// transport layer alone.
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

// IsSeller reports whether the actor carries the seller role.
func (a Actor) IsSeller() bool { return a.Role == domain.RoleSeller }

// OrderService drives the order lifecycle: placement, status transitions,
// cancellation, buyer edits, and gateway payment confirmations.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error)
	ListOrders(ctx context.Context, q OrderListQuery) (domain.Page[Order], error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) error
	Edit(ctx context.Context, cmd EditOrderCommand) (Order, error)
	ConfirmGatewayPayment(ctx context.Context, cmd GatewayConfirmationCommand) (Order, error)
}

// CatalogService manages seller products and the public browse surface.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	Restock(ctx context.Context, cmd RestockCommand) (Product, error)
	ArchiveProduct(ctx context.Context, cmd ArchiveProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	ListProducts(ctx context.Context, q ProductListQuery) (domain.Page[Product], error)
}

// StoreService manages seller storefronts and the passive sales ledger.
type StoreService interface {
	CreateStore(ctx context.Context, cmd CreateStoreCommand) (Store, error)
	UpdateStore(ctx context.Context, cmd UpdateStoreCommand) (Store, error)
	GetMyStore(ctx context.Context, sellerID string) (Store, error)
	GetStorePage(ctx context.Context, slug string) (StorePage, error)
	SetVerification(ctx context.Context, cmd StoreVerificationCommand) (Store, error)
	SetActive(ctx context.Context, cmd StoreActivationCommand) (Store, error)
	ListStores(ctx context.Context, q StoreListQuery) (domain.Page[Store], error)
}

// CartService maintains the buyer's mutable cart.
type CartService interface {
	GetCart(ctx context.Context, buyerID string) (Cart, error)
	ReplaceCart(ctx context.Context, cmd ReplaceCartCommand) (Cart, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, buyerID, productID string) (Cart, error)
	ClearCart(ctx context.Context, buyerID string) error
}

// CounterService hands out monotonically increasing sequence values and
// formatted business identifiers backed by the counter repository.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// CounterValue reports the raw sequence value and its formatted rendering.
type CounterValue struct {
	Value     int64
	Formatted string
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
	Prefix       string
	Suffix       string
	PadLength    int
	Formatter    func(now time.Time, seq int64) string
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// Command and DTO definitions ------------------------------------------------

// PlaceOrderLine is a single requested product/quantity pair.
type PlaceOrderLine struct {
	ProductID string
	Quantity  int64
}

type PlaceOrderCommand struct {
	BuyerID         string
	BuyerName       string
	BuyerEmail      string
	Items           []PlaceOrderLine
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	Note            string
}

// PlacedOrder pairs the persisted order with the gateway checkout payload
// the client needs to complete payment. Checkout is confirmed immediately
// for cash on delivery.
type PlacedOrder struct {
	Order    Order
	Checkout payments.Checkout
}

type OrderListQuery struct {
	Actor         Actor
	BuyerID       string
	SellerID      string
	Status        []OrderStatus
	PaymentStatus []PaymentStatus
	StartDate     *time.Time
	EndDate       *time.Time
	SortBy        string
	SortOrder     SortOrder
	Pagination
}

type OrderStatusTransitionCommand struct {
	OrderID  string
	Target   OrderStatus
	Actor    Actor
	Notes    string
	Tracking TrackingUpdate
}

// TrackingUpdate carries optional shipment tracking details supplied
// alongside a status transition. Moving an order to shipped requires a
// tracking number, either stored earlier or provided here.
type TrackingUpdate struct {
	Carrier        string
	TrackingNumber string
	TrackingURL    string
}

type CancelOrderCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

type DeleteOrderCommand struct {
	OrderID string
	Actor   Actor
}

type EditOrderCommand struct {
	OrderID         string
	Actor           Actor
	ShippingAddress *Address
	Note            *string
}

// GatewayConfirmationCommand carries a verified gateway notification into
// the order engine. Verification (hash or signature) happens in the
// payments package before this command is built.
type GatewayConfirmationCommand struct {
	Confirmation payments.Confirmation
}

type CreateProductCommand struct {
	SellerID    string
	Name        string
	Description string
	Price       Money
	Currency    string
	Stock       int64
	Images      []string
	Category    string
}

type UpdateProductCommand struct {
	ProductID   string
	Actor       Actor
	Name        *string
	Description *string
	Price       *Money
	Images      []string
	Category    *string
	IsActive    *bool
}

type RestockCommand struct {
	ProductID string
	Actor     Actor
	Quantity  int64
}

type ArchiveProductCommand struct {
	ProductID string
	Actor     Actor
}

type ProductListQuery struct {
	SellerID   string
	StoreID    string
	Category   string
	ActiveOnly bool
	Search     string
	Pagination
}

type CreateStoreCommand struct {
	SellerID    string
	Name        string
	Description string
	Logo        string
}

type UpdateStoreCommand struct {
	SellerID    string
	Name        *string
	Description *string
	Logo        *string
}

// StorePage is the public storefront view: the store plus its active products.
type StorePage struct {
	Store    Store
	Products []Product
}

type StoreVerificationCommand struct {
	StoreID string
	Actor   Actor
	Status  StoreVerification
}

type StoreActivationCommand struct {
	StoreID string
	Actor   Actor
	Active  bool
}

type StoreListQuery struct {
	Verification []StoreVerification
	ActiveOnly   bool
	Pagination
}

type ReplaceCartCommand struct {
	BuyerID string
	Items   []CartItem
}

type CartItemCommand struct {
	BuyerID   string
	ProductID string
	Quantity  int64
}

type CounterCommand struct {
	CounterID string
	Step      int64
}

// OrderListFilter re-exports the repository filter for handler convenience.
type OrderListFilter = repositories.OrderListFilter
