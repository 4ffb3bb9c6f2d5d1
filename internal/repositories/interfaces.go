package repositories

import (
	"context"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Stores() StoreRepository
	Carts() CartRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByTransactionID(ctx context.Context, txnID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
}

// ProductRepository manages catalog entries and owns all stock movement.
// ReserveStock and RestoreStock are conditional, transactional mutations;
// nothing else may write the stock field.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.Page[domain.Product], error)
	// ReserveStock atomically decrements stock for every line or fails the
	// whole batch with a stock error naming the offending product.
	ReserveStock(ctx context.Context, lines []StockLine) error
	// RestoreStock is the compensating increment for a prior reservation.
	RestoreStock(ctx context.Context, lines []StockLine) error
}

// StockLine names a quantity of one product for reservation or restoration.
type StockLine struct {
	ProductID string
	Quantity  int64
}

// StoreRepository persists storefronts and their sales ledgers. Ledger
// mutations are transactional and guarded so replays cannot double-apply.
type StoreRepository interface {
	Insert(ctx context.Context, store domain.Store) error
	Update(ctx context.Context, store domain.Store) error
	FindByID(ctx context.Context, storeID string) (domain.Store, error)
	FindBySeller(ctx context.Context, sellerID string) (domain.Store, error)
	FindBySlug(ctx context.Context, slug string) (domain.Store, error)
	List(ctx context.Context, filter StoreListFilter) (domain.Page[domain.Store], error)
	// RecordFulfilledOrder appends order refs to the store ledger.
	RecordFulfilledOrder(ctx context.Context, storeID string, refs []domain.StoreOrderRef) error
	// RemoveOrderRefs deletes the ledger links for a cancelled order.
	RemoveOrderRefs(ctx context.Context, storeID string, orderID string) error
	// AdjustSales applies a signed delta to the store's total sales, keyed so
	// the same (orderID, key) pair is applied at most once. Returns
	// ErrLedgerDuplicate semantics via a conflict error when replayed.
	AdjustSales(ctx context.Context, storeID string, orderID string, key string, delta domain.Money) error
	// AdjustProductCount moves the catalog size metric on create/archive.
	AdjustProductCount(ctx context.Context, storeID string, delta int64) error
}

// CartRepository owns cart persistence keyed by buyer.
type CartRepository interface {
	GetCart(ctx context.Context, buyerID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ReplaceItems(ctx context.Context, buyerID string, items []domain.CartItem) (domain.Cart, error)
	Clear(ctx context.Context, buyerID string) error
}

// UserRepository resolves principals for scoping checks.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
}

// CounterRepository issues monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	BuyerID       string
	SellerID      string
	Status        []domain.OrderStatus
	PaymentStatus []domain.PaymentStatus
	OrderedAt     domain.RangeQuery[time.Time]
	SortBy        string
	SortOrder     domain.SortOrder
	Pagination    domain.Pagination
}

type ProductListFilter struct {
	SellerID   string
	StoreID    string
	Category   string
	ActiveOnly bool
	Search     string
	Pagination domain.Pagination
}

type StoreListFilter struct {
	Verification []domain.StoreVerification
	ActiveOnly   bool
	Pagination   domain.Pagination
}

type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
