package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

// memStoreDirectory is a stateful store repository keyed by id, seller, and slug.
type memStoreDirectory struct {
	stores map[string]domain.Store
}

func newMemStoreDirectory(stores ...domain.Store) *memStoreDirectory {
	repo := &memStoreDirectory{stores: make(map[string]domain.Store)}
	for _, store := range stores {
		repo.stores[store.ID] = store
	}
	return repo
}

func (r *memStoreDirectory) Insert(_ context.Context, store domain.Store) error {
	r.stores[store.ID] = store
	return nil
}

func (r *memStoreDirectory) Update(_ context.Context, store domain.Store) error {
	r.stores[store.ID] = store
	return nil
}

func (r *memStoreDirectory) FindByID(_ context.Context, storeID string) (domain.Store, error) {
	store, ok := r.stores[storeID]
	if !ok {
		return domain.Store{}, notFoundError{}
	}
	return store, nil
}

func (r *memStoreDirectory) FindBySeller(_ context.Context, sellerID string) (domain.Store, error) {
	for _, store := range r.stores {
		if store.SellerID == sellerID {
			return store, nil
		}
	}
	return domain.Store{}, notFoundError{}
}

func (r *memStoreDirectory) FindBySlug(_ context.Context, slug string) (domain.Store, error) {
	for _, store := range r.stores {
		if store.Slug == slug {
			return store, nil
		}
	}
	return domain.Store{}, notFoundError{}
}

func (r *memStoreDirectory) List(context.Context, repositories.StoreListFilter) (domain.Page[domain.Store], error) {
	return domain.Page[domain.Store]{}, nil
}

func (r *memStoreDirectory) RecordFulfilledOrder(context.Context, string, []domain.StoreOrderRef) error {
	return nil
}

func (r *memStoreDirectory) RemoveOrderRefs(context.Context, string, string) error { return nil }

func (r *memStoreDirectory) AdjustSales(context.Context, string, string, string, domain.Money) error {
	return nil
}

func (r *memStoreDirectory) AdjustProductCount(context.Context, string, int64) error { return nil }

// storefrontProductRepo captures the list filter used for public store pages.
type storefrontProductRepo struct {
	*memProductRepo
	listFilter repositories.ProductListFilter
	listPage   domain.Page[domain.Product]
}

func (r *storefrontProductRepo) List(_ context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	r.listFilter = filter
	return r.listPage, nil
}

type storeFixture struct {
	service  StoreService
	stores   *memStoreDirectory
	products *storefrontProductRepo
}

func newStoreFixture(t *testing.T, stores ...domain.Store) *storeFixture {
	t.Helper()

	storeRepo := newMemStoreDirectory(stores...)
	productRepo := &storefrontProductRepo{memProductRepo: newMemProductRepo()}

	svc, err := NewStoreService(StoreServiceDeps{
		Stores:      storeRepo,
		Products:    productRepo,
		Clock:       func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "000TESTSTORE" },
	})
	if err != nil {
		t.Fatalf("new store service: %v", err)
	}
	return &storeFixture{service: svc, stores: storeRepo, products: productRepo}
}

func TestStoreServiceCreateStore(t *testing.T) {
	fixture := newStoreFixture(t)

	store, err := fixture.service.CreateStore(context.Background(), CreateStoreCommand{
		SellerID:    "seller-1",
		Name:        "Night Market",
		Description: "late night deals",
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	if store.ID != "str_000TESTSTORE" {
		t.Fatalf("unexpected store id %s", store.ID)
	}
	if store.Slug != "night-market" {
		t.Fatalf("expected slug night-market, got %s", store.Slug)
	}
	if store.VerificationStatus != domain.StoreVerificationPending {
		t.Fatalf("expected pending verification, got %s", store.VerificationStatus)
	}
	if !store.IsActive {
		t.Fatalf("expected new store to be active")
	}
}

func TestStoreServiceCreateStoreOnePerSeller(t *testing.T) {
	fixture := newStoreFixture(t, domain.Store{ID: "str_1", SellerID: "seller-1", Slug: "existing"})

	_, err := fixture.service.CreateStore(context.Background(), CreateStoreCommand{
		SellerID: "seller-1",
		Name:     "Second Shop",
	})
	if !errors.Is(err, ErrStoreExists) {
		t.Fatalf("expected one store per seller, got %v", err)
	}
}

func TestStoreServiceUpdateStorePatchesFields(t *testing.T) {
	fixture := newStoreFixture(t, domain.Store{
		ID: "str_1", SellerID: "seller-1", Name: "Night Market", Slug: "night-market", Description: "old",
	})
	desc := "new description"

	store, err := fixture.service.UpdateStore(context.Background(), UpdateStoreCommand{
		SellerID:    "seller-1",
		Description: &desc,
	})
	if err != nil {
		t.Fatalf("update store: %v", err)
	}
	if store.Name != "Night Market" {
		t.Fatalf("expected untouched name, got %s", store.Name)
	}
	if store.Description != "new description" {
		t.Fatalf("expected patched description, got %s", store.Description)
	}
}

func TestStoreServiceGetStorePage(t *testing.T) {
	fixture := newStoreFixture(t, domain.Store{
		ID:                 "str_1",
		SellerID:           "seller-1",
		Name:               "Night Market",
		Slug:               "night-market",
		VerificationStatus: domain.StoreVerificationVerified,
		IsActive:           true,
		Orders:             []domain.StoreOrderRef{{OrderID: "ord_1"}},
	})
	fixture.products.listPage = domain.Page[domain.Product]{
		Items: []domain.Product{{ID: "prd_1"}, {ID: "prd_2"}},
		Total: 2,
	}

	page, err := fixture.service.GetStorePage(context.Background(), "night-market")
	if err != nil {
		t.Fatalf("get store page: %v", err)
	}

	if page.Store.Orders != nil {
		t.Fatalf("expected ledger refs hidden from public page")
	}
	if len(page.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(page.Products))
	}
	filter := fixture.products.listFilter
	if filter.StoreID != "str_1" || !filter.ActiveOnly {
		t.Fatalf("expected active products scoped to store, got %+v", filter)
	}
	if filter.Pagination.Limit != storefrontProductLimit {
		t.Fatalf("expected limit %d, got %d", storefrontProductLimit, filter.Pagination.Limit)
	}
}

func TestStoreServiceGetStorePageHidesUnverified(t *testing.T) {
	fixture := newStoreFixture(t,
		domain.Store{ID: "str_1", SellerID: "s1", Slug: "pending-shop", VerificationStatus: domain.StoreVerificationPending, IsActive: true},
		domain.Store{ID: "str_2", SellerID: "s2", Slug: "dark-shop", VerificationStatus: domain.StoreVerificationVerified, IsActive: false},
	)
	ctx := context.Background()

	if _, err := fixture.service.GetStorePage(ctx, "pending-shop"); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected pending store hidden, got %v", err)
	}
	if _, err := fixture.service.GetStorePage(ctx, "dark-shop"); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected inactive store hidden, got %v", err)
	}
}

func TestStoreServiceSetVerification(t *testing.T) {
	fixture := newStoreFixture(t, domain.Store{
		ID: "str_1", SellerID: "seller-1", Slug: "shop", VerificationStatus: domain.StoreVerificationPending,
	})
	ctx := context.Background()
	admin := Actor{UserID: "admin-1", Role: domain.RoleAdmin}

	if _, err := fixture.service.SetVerification(ctx, StoreVerificationCommand{
		StoreID: "str_1",
		Actor:   Actor{UserID: "seller-1", Role: domain.RoleSeller},
		Status:  domain.StoreVerificationVerified,
	}); !errors.Is(err, ErrStoreForbidden) {
		t.Fatalf("expected forbidden for non-admin, got %v", err)
	}

	if _, err := fixture.service.SetVerification(ctx, StoreVerificationCommand{
		StoreID: "str_1",
		Actor:   admin,
		Status:  domain.StoreVerificationPending,
	}); !errors.Is(err, ErrStoreInvalidInput) {
		t.Fatalf("expected invalid target status, got %v", err)
	}

	store, err := fixture.service.SetVerification(ctx, StoreVerificationCommand{
		StoreID: "str_1",
		Actor:   admin,
		Status:  domain.StoreVerificationVerified,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if store.VerificationStatus != domain.StoreVerificationVerified {
		t.Fatalf("expected verified, got %s", store.VerificationStatus)
	}

	if _, err := fixture.service.SetVerification(ctx, StoreVerificationCommand{
		StoreID: "str_1",
		Actor:   admin,
		Status:  domain.StoreVerificationRejected,
	}); !errors.Is(err, ErrStoreConflict) {
		t.Fatalf("expected conflict once decided, got %v", err)
	}
}

func TestStoreServiceSetActiveScoping(t *testing.T) {
	fixture := newStoreFixture(t, domain.Store{
		ID: "str_1", SellerID: "seller-1", Slug: "shop", IsActive: true,
	})
	ctx := context.Background()

	if _, err := fixture.service.SetActive(ctx, StoreActivationCommand{
		StoreID: "str_1",
		Actor:   Actor{UserID: "seller-2", Role: domain.RoleSeller},
		Active:  false,
	}); !errors.Is(err, ErrStoreForbidden) {
		t.Fatalf("expected forbidden for another seller, got %v", err)
	}

	store, err := fixture.service.SetActive(ctx, StoreActivationCommand{
		StoreID: "str_1",
		Actor:   Actor{UserID: "seller-1", Role: domain.RoleSeller},
		Active:  false,
	})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if store.IsActive {
		t.Fatalf("expected store deactivated")
	}
}
