package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

// catalogStoreRepo resolves seller stores and records product-count deltas.
type catalogStoreRepo struct {
	bySeller map[string]domain.Store
	counts   map[string]int64
}

func newCatalogStoreRepo(stores ...domain.Store) *catalogStoreRepo {
	repo := &catalogStoreRepo{
		bySeller: make(map[string]domain.Store),
		counts:   make(map[string]int64),
	}
	for _, store := range stores {
		repo.bySeller[store.SellerID] = store
	}
	return repo
}

func (r *catalogStoreRepo) Insert(context.Context, domain.Store) error { return nil }
func (r *catalogStoreRepo) Update(context.Context, domain.Store) error { return nil }

func (r *catalogStoreRepo) FindByID(_ context.Context, storeID string) (domain.Store, error) {
	for _, store := range r.bySeller {
		if store.ID == storeID {
			return store, nil
		}
	}
	return domain.Store{}, notFoundError{}
}

func (r *catalogStoreRepo) FindBySeller(_ context.Context, sellerID string) (domain.Store, error) {
	store, ok := r.bySeller[sellerID]
	if !ok {
		return domain.Store{}, notFoundError{}
	}
	return store, nil
}

func (r *catalogStoreRepo) FindBySlug(context.Context, string) (domain.Store, error) {
	return domain.Store{}, notFoundError{}
}

func (r *catalogStoreRepo) List(context.Context, repositories.StoreListFilter) (domain.Page[domain.Store], error) {
	return domain.Page[domain.Store]{}, nil
}

func (r *catalogStoreRepo) RecordFulfilledOrder(context.Context, string, []domain.StoreOrderRef) error {
	return nil
}

func (r *catalogStoreRepo) RemoveOrderRefs(context.Context, string, string) error { return nil }

func (r *catalogStoreRepo) AdjustSales(context.Context, string, string, string, domain.Money) error {
	return nil
}

func (r *catalogStoreRepo) AdjustProductCount(_ context.Context, storeID string, delta int64) error {
	r.counts[storeID] += delta
	return nil
}

type catalogFixture struct {
	service  CatalogService
	products *memProductRepo
	stores   *catalogStoreRepo
}

func newCatalogFixture(t *testing.T, products ...domain.Product) *catalogFixture {
	t.Helper()

	productRepo := newMemProductRepo(products...)
	storeRepo := newCatalogStoreRepo(domain.Store{ID: "store-1", SellerID: "seller-1"})

	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    productRepo,
		Stores:      storeRepo,
		UnitOfWork:  &stubUnitOfWork{},
		Clock:       func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "000TESTPRODUCT" },
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return &catalogFixture{service: svc, products: productRepo, stores: storeRepo}
}

func TestCatalogServiceCreateProduct(t *testing.T) {
	fixture := newCatalogFixture(t)

	product, err := fixture.service.CreateProduct(context.Background(), CreateProductCommand{
		SellerID:    "seller-1",
		Name:        "  Fancy Lamp!  ",
		Description: "warm light",
		Price:       1299,
		Stock:       10,
		Category:    "home",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if product.ID != "prd_000TESTPRODUCT" {
		t.Fatalf("unexpected product id %s", product.ID)
	}
	if product.StoreID != "store-1" {
		t.Fatalf("expected product bound to store-1, got %s", product.StoreID)
	}
	if product.Slug != "fancy-lamp" {
		t.Fatalf("expected slug fancy-lamp, got %s", product.Slug)
	}
	if product.Currency != domain.DefaultCurrency {
		t.Fatalf("expected default currency, got %s", product.Currency)
	}
	if !product.IsActive {
		t.Fatalf("expected new product to be active")
	}
	if got := fixture.stores.counts["store-1"]; got != 1 {
		t.Fatalf("expected product count 1, got %d", got)
	}
	if _, err := fixture.products.FindByID(context.Background(), product.ID); err != nil {
		t.Fatalf("expected product persisted: %v", err)
	}
}

func TestCatalogServiceCreateProductRequiresStore(t *testing.T) {
	fixture := newCatalogFixture(t)

	_, err := fixture.service.CreateProduct(context.Background(), CreateProductCommand{
		SellerID: "seller-without-store",
		Name:     "Lamp",
		Price:    100,
	})
	if !errors.Is(err, ErrCatalogStoreRequired) {
		t.Fatalf("expected store required error, got %v", err)
	}
}

func TestCatalogServiceCreateProductValidatesInput(t *testing.T) {
	fixture := newCatalogFixture(t)
	ctx := context.Background()

	cases := []CreateProductCommand{
		{SellerID: "", Name: "Lamp", Price: 100},
		{SellerID: "seller-1", Name: "  ", Price: 100},
		{SellerID: "seller-1", Name: "Lamp", Price: 0},
		{SellerID: "seller-1", Name: "Lamp", Price: 100, Stock: -1},
	}
	for i, cmd := range cases {
		if _, err := fixture.service.CreateProduct(ctx, cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestCatalogServiceCreateProductDisambiguatesSlug(t *testing.T) {
	existing := domain.Product{ID: "prd_taken", SellerID: "seller-1", Slug: "fancy-lamp"}
	fixture := newCatalogFixture(t, existing)

	product, err := fixture.service.CreateProduct(context.Background(), CreateProductCommand{
		SellerID: "seller-1",
		Name:     "Fancy Lamp",
		Price:    500,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Slug == "fancy-lamp" {
		t.Fatalf("expected a suffixed slug, got %s", product.Slug)
	}
	if !strings.HasPrefix(product.Slug, "fancy-lamp-") {
		t.Fatalf("expected slug derived from name, got %s", product.Slug)
	}
}

func TestCatalogServiceUpdateProductScoping(t *testing.T) {
	product := domain.Product{ID: "prd_1", SellerID: "seller-1", StoreID: "store-1", Name: "Lamp", Price: 100, IsActive: true}
	fixture := newCatalogFixture(t, product)
	ctx := context.Background()
	newName := "Brighter Lamp"

	_, err := fixture.service.UpdateProduct(ctx, UpdateProductCommand{
		ProductID: "prd_1",
		Actor:     Actor{UserID: "seller-2", Role: domain.RoleSeller},
		Name:      &newName,
	})
	if !errors.Is(err, ErrCatalogForbidden) {
		t.Fatalf("expected forbidden for another seller, got %v", err)
	}

	updated, err := fixture.service.UpdateProduct(ctx, UpdateProductCommand{
		ProductID: "prd_1",
		Actor:     Actor{UserID: "admin-1", Role: domain.RoleAdmin},
		Name:      &newName,
	})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if updated.Name != "Brighter Lamp" {
		t.Fatalf("expected updated name, got %s", updated.Name)
	}
}

func TestCatalogServiceUpdateProductDeactivationAdjustsCount(t *testing.T) {
	product := domain.Product{ID: "prd_1", SellerID: "seller-1", StoreID: "store-1", Name: "Lamp", Price: 100, IsActive: true}
	fixture := newCatalogFixture(t, product)
	inactive := false

	if _, err := fixture.service.UpdateProduct(context.Background(), UpdateProductCommand{
		ProductID: "prd_1",
		Actor:     Actor{UserID: "seller-1", Role: domain.RoleSeller},
		IsActive:  &inactive,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := fixture.stores.counts["store-1"]; got != -1 {
		t.Fatalf("expected product count delta -1, got %d", got)
	}
}

func TestCatalogServiceRestock(t *testing.T) {
	product := domain.Product{ID: "prd_1", SellerID: "seller-1", StoreID: "store-1", Name: "Lamp", Price: 100, Stock: 3, IsActive: true}
	fixture := newCatalogFixture(t, product)
	ctx := context.Background()

	if _, err := fixture.service.Restock(ctx, RestockCommand{
		ProductID: "prd_1",
		Actor:     Actor{UserID: "seller-1", Role: domain.RoleSeller},
		Quantity:  0,
	}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}

	restocked, err := fixture.service.Restock(ctx, RestockCommand{
		ProductID: "prd_1",
		Actor:     Actor{UserID: "seller-1", Role: domain.RoleSeller},
		Quantity:  7,
	})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if restocked.Stock != 10 {
		t.Fatalf("expected stock 10, got %d", restocked.Stock)
	}
	if got := fixture.products.stock("prd_1"); got != 10 {
		t.Fatalf("expected persisted stock 10, got %d", got)
	}
}

func TestCatalogServiceArchiveProductIdempotent(t *testing.T) {
	product := domain.Product{ID: "prd_1", SellerID: "seller-1", StoreID: "store-1", Name: "Lamp", Price: 100, IsActive: true}
	fixture := newCatalogFixture(t, product)
	ctx := context.Background()
	actor := Actor{UserID: "seller-1", Role: domain.RoleSeller}

	archived, err := fixture.service.ArchiveProduct(ctx, ArchiveProductCommand{ProductID: "prd_1", Actor: actor})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.IsActive {
		t.Fatalf("expected archived product to be inactive")
	}

	if _, err := fixture.service.ArchiveProduct(ctx, ArchiveProductCommand{ProductID: "prd_1", Actor: actor}); err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if got := fixture.stores.counts["store-1"]; got != -1 {
		t.Fatalf("expected count adjusted once, got %d", got)
	}
}

func TestCatalogServiceGetProductNotFound(t *testing.T) {
	fixture := newCatalogFixture(t)

	_, err := fixture.service.GetProduct(context.Background(), "prd_missing")
	if !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Fancy Lamp":        "fancy-lamp",
		"  Trim Me  ":       "trim-me",
		"Multi   Space":     "multi-space",
		"Symbols & More!!!": "symbols-more",
		"MixedCase42":       "mixedcase42",
		"---":               "",
	}
	for input, want := range cases {
		if got := slugify(input); got != want {
			t.Fatalf("slugify(%q) = %q, want %q", input, got, want)
		}
	}
}
