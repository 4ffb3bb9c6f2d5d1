package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/firestore"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

// Registry bundles the Firestore repositories behind the repositories.Registry
// contract and provides the cross-repository unit of work.
type Registry struct {
	provider *pfirestore.Provider

	orders   *OrderRepository
	products *ProductRepository
	stores   *StoreRepository
	carts    *CartRepository
	users    *UserRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

// RegistryConfig carries optional overrides for registry construction.
type RegistryConfig struct {
	Health repositories.HealthRepository
}

// NewRegistry wires every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider, cfg RegistryConfig) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	stores, err := NewStoreRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		orders:   orders,
		products: products,
		stores:   stores,
		carts:    carts,
		users:    users,
		counters: counters,
		health:   cfg.Health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Stores() repositories.StoreRepository     { return r.stores }
func (r *Registry) Carts() repositories.CartRepository       { return r.carts }
func (r *Registry) Users() repositories.UserRepository       { return r.users }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// RunInTx executes fn within one Firestore transaction. Repository methods
// invoked from fn observe the ambient transaction through the context and
// join it, which is what makes multi-document order placement atomic.
// Repository writes inside fn are staged and flushed after fn returns,
// because Firestore rejects reads issued after the first buffered write.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		// Already inside a unit of work; nesting joins it.
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.WithTransaction(ctx, tx))
	})
}

var _ repositories.Registry = (*Registry)(nil)
