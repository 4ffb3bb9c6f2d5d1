package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

const storeIDPrefix = "str_"

var (
	// ErrStoreInvalidInput signals invalid store data from the caller.
	ErrStoreInvalidInput = errors.New("store: invalid input")
	// ErrStoreNotFound indicates the store could not be located.
	ErrStoreNotFound = errors.New("store: not found")
	// ErrStoreForbidden indicates the actor may not manage the store.
	ErrStoreForbidden = errors.New("store: forbidden")
	// ErrStoreConflict indicates a duplicate store or concurrent modification.
	ErrStoreConflict = errors.New("store: conflict")
	// ErrStoreExists indicates the seller already owns a store.
	ErrStoreExists = errors.New("store: seller already has a store")
)

// storefrontProductLimit caps the product list embedded in a public store page.
const storefrontProductLimit = 50

// StoreServiceDeps bundles collaborators required to construct the store service.
type StoreServiceDeps struct {
	Stores      repositories.StoreRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type storeService struct {
	stores   repositories.StoreRepository
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewStoreService wires dependencies into a concrete StoreService implementation.
func NewStoreService(deps StoreServiceDeps) (StoreService, error) {
	if deps.Stores == nil {
		return nil, errors.New("store service: store repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("store service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &storeService{
		stores:   deps.Stores,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *storeService) CreateStore(ctx context.Context, cmd CreateStoreCommand) (Store, error) {
	sellerID := strings.TrimSpace(cmd.SellerID)
	name := strings.TrimSpace(cmd.Name)
	if sellerID == "" {
		return Store{}, fmt.Errorf("%w: seller id is required", ErrStoreInvalidInput)
	}
	if name == "" {
		return Store{}, fmt.Errorf("%w: store name is required", ErrStoreInvalidInput)
	}

	// One store per seller.
	if _, err := s.stores.FindBySeller(ctx, sellerID); err == nil {
		return Store{}, ErrStoreExists
	} else if mapped := s.mapRepositoryError(err); !errors.Is(mapped, ErrStoreNotFound) {
		return Store{}, mapped
	}

	now := s.now()
	store := domain.Store{
		ID:                 storeIDPrefix + s.newID(),
		SellerID:           sellerID,
		Name:               name,
		Slug:               s.uniqueSlug(ctx, name),
		Description:        strings.TrimSpace(cmd.Description),
		Logo:               strings.TrimSpace(cmd.Logo),
		VerificationStatus: domain.StoreVerificationPending,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.stores.Insert(ctx, store); err != nil {
		return Store{}, s.mapRepositoryError(err)
	}
	return store, nil
}

func (s *storeService) UpdateStore(ctx context.Context, cmd UpdateStoreCommand) (Store, error) {
	store, err := s.GetMyStore(ctx, cmd.SellerID)
	if err != nil {
		return Store{}, err
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Store{}, fmt.Errorf("%w: store name cannot be empty", ErrStoreInvalidInput)
		}
		store.Name = name
	}
	if cmd.Description != nil {
		store.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Logo != nil {
		store.Logo = strings.TrimSpace(*cmd.Logo)
	}
	store.UpdatedAt = s.now()

	if err := s.stores.Update(ctx, store); err != nil {
		return Store{}, s.mapRepositoryError(err)
	}
	return store, nil
}

func (s *storeService) GetMyStore(ctx context.Context, sellerID string) (Store, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return Store{}, fmt.Errorf("%w: seller id is required", ErrStoreInvalidInput)
	}
	store, err := s.stores.FindBySeller(ctx, sellerID)
	if err != nil {
		return Store{}, s.mapRepositoryError(err)
	}
	return store, nil
}

// GetStorePage builds the public storefront: the store plus its active
// products. Inactive or unverified stores are not exposed.
func (s *storeService) GetStorePage(ctx context.Context, slug string) (StorePage, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return StorePage{}, fmt.Errorf("%w: slug is required", ErrStoreInvalidInput)
	}

	store, err := s.stores.FindBySlug(ctx, slug)
	if err != nil {
		return StorePage{}, s.mapRepositoryError(err)
	}
	if !store.IsActive || store.VerificationStatus != domain.StoreVerificationVerified {
		return StorePage{}, fmt.Errorf("%w: store %s", ErrStoreNotFound, slug)
	}

	page, err := s.products.List(ctx, repositories.ProductListFilter{
		StoreID:    store.ID,
		ActiveOnly: true,
		Pagination: domain.Pagination{Page: 1, Limit: storefrontProductLimit},
	})
	if err != nil {
		return StorePage{}, s.mapRepositoryError(err)
	}

	// The ledger and order refs are private to the seller.
	store.Orders = nil
	return StorePage{Store: store, Products: page.Items}, nil
}

func (s *storeService) SetVerification(ctx context.Context, cmd StoreVerificationCommand) (Store, error) {
	if !cmd.Actor.IsAdmin() {
		return Store{}, fmt.Errorf("%w: only admins verify stores", ErrStoreForbidden)
	}
	switch cmd.Status {
	case domain.StoreVerificationVerified, domain.StoreVerificationRejected:
	default:
		return Store{}, fmt.Errorf("%w: verification status must be verified or rejected", ErrStoreInvalidInput)
	}

	store, err := s.findByID(ctx, cmd.StoreID)
	if err != nil {
		return Store{}, err
	}
	if store.VerificationStatus != domain.StoreVerificationPending {
		return Store{}, fmt.Errorf("%w: store verification already %s", ErrStoreConflict, store.VerificationStatus)
	}

	store.VerificationStatus = cmd.Status
	store.UpdatedAt = s.now()
	if err := s.stores.Update(ctx, store); err != nil {
		return Store{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "store.verification.changed", map[string]any{
		"storeId": store.ID,
		"status":  string(cmd.Status),
		"actorId": cmd.Actor.UserID,
	})
	return store, nil
}

func (s *storeService) SetActive(ctx context.Context, cmd StoreActivationCommand) (Store, error) {
	store, err := s.findByID(ctx, cmd.StoreID)
	if err != nil {
		return Store{}, err
	}
	if !cmd.Actor.IsAdmin() && store.SellerID != cmd.Actor.UserID {
		return Store{}, fmt.Errorf("%w: store belongs to another seller", ErrStoreForbidden)
	}
	if store.IsActive == cmd.Active {
		return store, nil
	}

	store.IsActive = cmd.Active
	store.UpdatedAt = s.now()
	if err := s.stores.Update(ctx, store); err != nil {
		return Store{}, s.mapRepositoryError(err)
	}
	return store, nil
}

func (s *storeService) ListStores(ctx context.Context, q StoreListQuery) (domain.Page[Store], error) {
	page, err := s.stores.List(ctx, repositories.StoreListFilter{
		Verification: q.Verification,
		ActiveOnly:   q.ActiveOnly,
		Pagination:   q.Pagination,
	})
	if err != nil {
		return domain.Page[Store]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *storeService) findByID(ctx context.Context, storeID string) (Store, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return Store{}, fmt.Errorf("%w: store id is required", ErrStoreInvalidInput)
	}
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return Store{}, s.mapRepositoryError(err)
	}
	return store, nil
}

func (s *storeService) uniqueSlug(ctx context.Context, name string) string {
	slug := slugify(name)
	if slug == "" {
		slug = "store"
	}
	if _, err := s.stores.FindBySlug(ctx, slug); err != nil {
		return slug
	}
	suffix := strings.ToLower(s.newID())
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return slug + "-" + suffix
}

func (s *storeService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrStoreNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrStoreConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("store: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *storeService) now() time.Time {
	return s.clock()
}
