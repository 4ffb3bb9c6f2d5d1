package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Abdullah-Zzz/live-shopping-backend/internal/payments"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/config"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Catalog  services.CatalogService
	Stores   services.StoreService
	Cart     services.CartService
	Counters services.CounterService
	System   services.SystemService
}

// Deps carries the externally constructed collaborators the container wires
// into services: the repository registry, the payment gateway manager, and the
// optional order event publisher.
type Deps struct {
	Registry repositories.Registry
	Payments *payments.Manager
	Events   services.OrderEventPublisher
	Build    services.BuildInfo
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Payments     *payments.Manager
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore
// registry and live payment providers, while tests can supply in-memory implementations.
func NewContainer(cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payments manager is required")
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Payments:     deps.Payments,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Clock:    clock,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		Stores:     reg.Stores(),
		UnitOfWork: reg,
		Clock:      clock,
		Logger:     deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	storeSvc, err := services.NewStoreService(services.StoreServiceDeps{
		Stores:   reg.Stores(),
		Products: reg.Products(),
		Clock:    clock,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build store service: %w", err)
	}
	svc.Stores = storeSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Stores:     reg.Stores(),
		Carts:      reg.Carts(),
		Counters:   reg.Counters(),
		Users:      reg.Users(),
		Payments:   deps.Payments,
		UnitOfWork: reg,
		Clock:      clock,
		Events:     deps.Events,
		Logger:     deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := deps.Build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
			Counters:         svc.Counters,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
