package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	pfirestore "github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/firestore"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists buyer carts keyed by buyer ID.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetCart loads the cart for the given buyer. A missing document is returned
// as an empty cart rather than an error.
func (r *CartRepository) GetCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return domain.Cart{}, errors.New("cart repository: buyer id is required")
	}

	doc, err := r.base.Get(ctx, buyerID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{ID: buyerID, BuyerID: buyerID, Items: []domain.CartItem{}}, nil
		}
		return domain.Cart{}, err
	}

	return doc.Data.toDomain(doc.ID), nil
}

// UpsertCart persists the cart using the buyer ID as document identifier.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	buyerID := strings.TrimSpace(cart.BuyerID)
	if buyerID == "" {
		buyerID = strings.TrimSpace(cart.ID)
	}
	if buyerID == "" {
		return domain.Cart{}, errors.New("cart repository: buyer id is required")
	}

	now := cart.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	doc := newCartDocument(cart, now)
	result, err := r.base.Set(ctx, buyerID, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := doc.toDomain(buyerID)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// ReplaceItems swaps the cart contents wholesale.
func (r *CartRepository) ReplaceItems(ctx context.Context, buyerID string, items []domain.CartItem) (domain.Cart, error) {
	cart, err := r.GetCart(ctx, buyerID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = items
	cart.UpdatedAt = time.Now().UTC()
	return r.UpsertCart(ctx, cart)
}

// Clear removes the buyer's cart document.
func (r *CartRepository) Clear(ctx context.Context, buyerID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return errors.New("cart repository: buyer id is required")
	}
	ref, err := r.base.DocumentRef(ctx, buyerID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.clear", err)
	}
	return nil
}

type cartDocument struct {
	BuyerID   string             `firestore:"buyerId"`
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Quantity  int64     `firestore:"qty"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func newCartDocument(cart domain.Cart, now time.Time) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Quantity <= 0 {
			continue
		}
		addedAt := item.AddedAt.UTC()
		if addedAt.IsZero() {
			addedAt = now
		}
		items = append(items, cartItemDocument{
			ProductID: productID,
			Quantity:  item.Quantity,
			AddedAt:   addedAt,
		})
	}
	buyerID := strings.TrimSpace(cart.BuyerID)
	if buyerID == "" {
		buyerID = strings.TrimSpace(cart.ID)
	}
	return cartDocument{
		BuyerID:   buyerID,
		Items:     items,
		UpdatedAt: now,
	}
}

func (d cartDocument) toDomain(id string) domain.Cart {
	items := make([]domain.CartItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		}
	}
	return domain.Cart{
		ID:        id,
		BuyerID:   d.BuyerID,
		Items:     items,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
