package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	pfirestore "github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/firestore"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

const productsCollection = "products"

type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection)
	return &ProductRepository{provider: provider, products: products}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	ref, err := r.products.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	doc := newProductDocument(product)
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		return pfirestore.StageWrite(ctx, func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("products.insert", tx.Create(ref, doc))
		})
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	// Stock never travels through Update; the conditional mutations below own
	// that field. Read the current value and carry it forward.
	body := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, product.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var current productDocument
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decode product %s: %w", product.ID, err)
		}
		doc := newProductDocument(product)
		doc.Stock = current.Stock
		doc.CreatedAt = current.CreatedAt
		return pfirestore.StageWrite(ctx, func(tx *firestore.Transaction) error {
			return tx.Set(ref, doc)
		})
	}

	var err error
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		err = body(ctx, tx)
	} else {
		err = r.provider.RunTransaction(ctx, body)
	}
	if err != nil {
		return pfirestore.WrapError("products.update", err)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Product{}, errors.New("products: slug is required")
	}
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", slug).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.WrapError("products.findBySlug", status.Error(codes.NotFound, "product not found"))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Product]{}, errors.New("product repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}

	query := client.Collection(productsCollection).Query
	if sellerID := strings.TrimSpace(filter.SellerID); sellerID != "" {
		query = query.Where("sellerId", "==", sellerID)
	}
	if storeID := strings.TrimSpace(filter.StoreID); storeID != "" {
		query = query.Where("storeId", "==", storeID)
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category", "==", category)
	}
	if filter.ActiveOnly {
		query = query.Where("isActive", "==", true)
	}

	page, limit := normalisePage(filter.Pagination)
	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	query = query.OrderBy("createdAt", firestore.Desc).Offset((page - 1) * limit).Limit(limit)
	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}

	return newPage(products, total, page, limit), nil
}

// ReserveStock decrements stock for every line inside one transaction. Any
// missing, inactive, or short product aborts the batch with no writes.
func (r *ProductRepository) ReserveStock(ctx context.Context, lines []repositories.StockLine) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if len(lines) == 0 {
		return errors.New("products reserve: at least one line is required")
	}
	return r.mutateStock(ctx, "products.reserveStock", lines, func(doc *productDocument, line repositories.StockLine) error {
		if !doc.IsActive {
			return repositories.NewStockError(repositories.StockErrorProductInactive, line.ProductID, fmt.Sprintf("product %s is not available", line.ProductID), nil)
		}
		if doc.Stock < line.Quantity {
			return repositories.NewStockError(repositories.StockErrorInsufficient, line.ProductID, fmt.Sprintf("insufficient stock for %s", line.ProductID), nil)
		}
		doc.Stock -= line.Quantity
		return nil
	})
}

// RestoreStock is the compensating increment used by cancellations and
// failed gateway confirmations.
func (r *ProductRepository) RestoreStock(ctx context.Context, lines []repositories.StockLine) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if len(lines) == 0 {
		return nil
	}
	return r.mutateStock(ctx, "products.restoreStock", lines, func(doc *productDocument, line repositories.StockLine) error {
		doc.Stock += line.Quantity
		return nil
	})
}

func (r *ProductRepository) mutateStock(ctx context.Context, op string, lines []repositories.StockLine, apply func(*productDocument, repositories.StockLine) error) error {
	// Reads run up front and the writes are staged, so a unit of work that
	// touches stores or orders after this still only has reads in flight.
	body := func(ctx context.Context, tx *firestore.Transaction) error {
		for _, line := range lines {
			productID := strings.TrimSpace(line.ProductID)
			if productID == "" {
				return repositories.NewStockError(repositories.StockErrorUnknown, "", "product id is required", nil)
			}
			if line.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorUnknown, productID, fmt.Sprintf("quantity for %s must be > 0", productID), nil)
			}
			ref, err := r.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), err)
				}
				return err
			}
			doc := new(productDocument)
			if err := snap.DataTo(doc); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}
			if err := apply(doc, repositories.StockLine{ProductID: productID, Quantity: line.Quantity}); err != nil {
				return err
			}
			doc.UpdatedAt = time.Now().UTC()
			if err := pfirestore.StageWrite(ctx, func(tx *firestore.Transaction) error {
				return tx.Set(ref, doc)
			}); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		err = body(ctx, tx)
	} else {
		err = r.provider.RunTransaction(ctx, body)
	}
	return wrapStockError(op, err)
}

// Helper structures ---------------------------------------------------------

type productDocument struct {
	SellerID    string    `firestore:"sellerId"`
	StoreID     string    `firestore:"storeId"`
	Name        string    `firestore:"name"`
	Slug        string    `firestore:"slug"`
	Description string    `firestore:"description,omitempty"`
	Price       int64     `firestore:"price"`
	Currency    string    `firestore:"currency"`
	Stock       int64     `firestore:"stock"`
	Images      []string  `firestore:"images,omitempty"`
	Category    string    `firestore:"category,omitempty"`
	IsActive    bool      `firestore:"isActive"`
	RatingAvg   float64   `firestore:"ratingAvg"`
	RatingCount int64     `firestore:"ratingCount"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	currency := strings.TrimSpace(p.Currency)
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return productDocument{
		SellerID:    strings.TrimSpace(p.SellerID),
		StoreID:     strings.TrimSpace(p.StoreID),
		Name:        strings.TrimSpace(p.Name),
		Slug:        strings.TrimSpace(p.Slug),
		Description: strings.TrimSpace(p.Description),
		Price:       int64(p.Price),
		Currency:    currency,
		Stock:       p.Stock,
		Images:      p.Images,
		Category:    strings.TrimSpace(p.Category),
		IsActive:    p.IsActive,
		RatingAvg:   p.Rating.Average,
		RatingCount: p.Rating.Count,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		SellerID:    d.SellerID,
		StoreID:     d.StoreID,
		Name:        d.Name,
		Slug:        d.Slug,
		Description: d.Description,
		Price:       domain.Money(d.Price),
		Currency:    d.Currency,
		Stock:       d.Stock,
		Images:      d.Images,
		Category:    d.Category,
		IsActive:    d.IsActive,
		Rating:      domain.ProductRating{Average: d.RatingAvg, Count: d.RatingCount},
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
