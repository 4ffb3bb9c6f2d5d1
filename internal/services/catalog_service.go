package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

const productIDPrefix = "prd_"

var (
	// ErrCatalogInvalidInput signals invalid product data from the caller.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product could not be located.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogForbidden indicates the actor does not own the product.
	ErrCatalogForbidden = errors.New("catalog: forbidden")
	// ErrCatalogConflict indicates a duplicate or concurrent modification.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogStoreRequired indicates the seller has no store to sell from.
	ErrCatalogStoreRequired = errors.New("catalog: seller store required")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Stores      repositories.StoreRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	stores     repositories.StoreRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("catalog service: store repository is required")
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
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products:   deps.Products,
		stores:     deps.Stores,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	sellerID := strings.TrimSpace(cmd.SellerID)
	name := strings.TrimSpace(cmd.Name)
	if sellerID == "" {
		return Product{}, fmt.Errorf("%w: seller id is required", ErrCatalogInvalidInput)
	}
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
	}

	store, err := s.stores.FindBySeller(ctx, sellerID)
	if err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrCatalogNotFound) {
			return Product{}, fmt.Errorf("%w: create a store before listing products", ErrCatalogStoreRequired)
		}
		return Product{}, mapped
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	now := s.now()
	product := domain.Product{
		ID:          productIDPrefix + s.newID(),
		SellerID:    sellerID,
		StoreID:     store.ID,
		Name:        name,
		Slug:        s.uniqueSlug(ctx, name),
		Description: strings.TrimSpace(cmd.Description),
		Price:       cmd.Price,
		Currency:    currency,
		Stock:       cmd.Stock,
		Images:      cmd.Images,
		Category:    strings.TrimSpace(cmd.Category),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.products.Insert(txCtx, product); err != nil {
			return s.mapRepositoryError(err)
		}
		return s.stores.AdjustProductCount(txCtx, store.ID, 1)
	})
	if err != nil {
		return Product{}, err
	}

	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	product, err := s.loadOwned(ctx, cmd.ProductID, cmd.Actor)
	if err != nil {
		return Product{}, err
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: product name cannot be empty", ErrCatalogInvalidInput)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		product.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Images != nil {
		product.Images = cmd.Images
	}
	if cmd.Category != nil {
		product.Category = strings.TrimSpace(*cmd.Category)
	}

	wasActive := product.IsActive
	if cmd.IsActive != nil {
		product.IsActive = *cmd.IsActive
	}
	product.UpdatedAt = s.now()

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.products.Update(txCtx, product); err != nil {
			return s.mapRepositoryError(err)
		}
		if cmd.IsActive != nil && wasActive != product.IsActive {
			delta := int64(-1)
			if product.IsActive {
				delta = 1
			}
			return s.stores.AdjustProductCount(txCtx, product.StoreID, delta)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// Restock raises available stock through the compensating increment so the
// stock field never sees a plain write.
func (s *catalogService) Restock(ctx context.Context, cmd RestockCommand) (Product, error) {
	if cmd.Quantity < 1 {
		return Product{}, fmt.Errorf("%w: restock quantity must be at least 1", ErrCatalogInvalidInput)
	}
	product, err := s.loadOwned(ctx, cmd.ProductID, cmd.Actor)
	if err != nil {
		return Product{}, err
	}

	err = s.products.RestoreStock(ctx, []repositories.StockLine{{ProductID: product.ID, Quantity: cmd.Quantity}})
	if err != nil {
		return Product{}, err
	}

	product.Stock += cmd.Quantity
	return product, nil
}

func (s *catalogService) ArchiveProduct(ctx context.Context, cmd ArchiveProductCommand) (Product, error) {
	product, err := s.loadOwned(ctx, cmd.ProductID, cmd.Actor)
	if err != nil {
		return Product{}, err
	}
	if !product.IsActive {
		return product, nil
	}

	product.IsActive = false
	product.UpdatedAt = s.now()

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.products.Update(txCtx, product); err != nil {
			return s.mapRepositoryError(err)
		}
		return s.stores.AdjustProductCount(txCtx, product.StoreID, -1)
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Product{}, fmt.Errorf("%w: slug is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindBySlug(ctx, slug)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, q ProductListQuery) (domain.Page[Product], error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		SellerID:   strings.TrimSpace(q.SellerID),
		StoreID:    strings.TrimSpace(q.StoreID),
		Category:   strings.TrimSpace(q.Category),
		ActiveOnly: q.ActiveOnly,
		Search:     strings.TrimSpace(q.Search),
		Pagination: q.Pagination,
	})
	if err != nil {
		return domain.Page[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) loadOwned(ctx context.Context, productID string, actor Actor) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	if !actor.IsAdmin() && product.SellerID != actor.UserID {
		return Product{}, fmt.Errorf("%w: product belongs to another seller", ErrCatalogForbidden)
	}
	return product, nil
}

// uniqueSlug derives a URL slug from the name and disambiguates collisions
// with a short random suffix.
func (s *catalogService) uniqueSlug(ctx context.Context, name string) string {
	slug := slugify(name)
	if slug == "" {
		slug = "product"
	}
	if _, err := s.products.FindBySlug(ctx, slug); err != nil {
		return slug
	}
	suffix := strings.ToLower(s.newID())
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return slug + "-" + suffix
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *catalogService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *catalogService) now() time.Time {
	return s.clock()
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
