package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
)

// memCartRepo stores carts in memory, returning an empty cart for unknown buyers
// the way the Firestore repository does.
type memCartRepo struct {
	carts map[string]domain.Cart
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[string]domain.Cart)}
}

func (r *memCartRepo) GetCart(_ context.Context, buyerID string) (domain.Cart, error) {
	cart, ok := r.carts[buyerID]
	if !ok {
		return domain.Cart{BuyerID: buyerID}, nil
	}
	return cart, nil
}

func (r *memCartRepo) UpsertCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.carts[cart.BuyerID] = cart
	return cart, nil
}

func (r *memCartRepo) ReplaceItems(_ context.Context, buyerID string, items []domain.CartItem) (domain.Cart, error) {
	cart := domain.Cart{BuyerID: buyerID, Items: items}
	r.carts[buyerID] = cart
	return cart, nil
}

func (r *memCartRepo) Clear(_ context.Context, buyerID string) error {
	delete(r.carts, buyerID)
	return nil
}

type cartFixture struct {
	service CartService
	carts   *memCartRepo
}

func newCartFixture(t *testing.T, products ...domain.Product) *cartFixture {
	t.Helper()

	cartRepo := newMemCartRepo()
	svc, err := NewCartService(CartServiceDeps{
		Carts:    cartRepo,
		Products: newMemProductRepo(products...),
		Clock:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return &cartFixture{service: svc, carts: cartRepo}
}

func TestCartServiceAddItemMergesQuantity(t *testing.T) {
	fixture := newCartFixture(t, domain.Product{ID: "prd_1", Stock: 10, IsActive: true})
	ctx := context.Background()

	if _, err := fixture.service.AddItem(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_1", Quantity: 2}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	cart, err := fixture.service.AddItem(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_1", Quantity: 3})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected a single merged line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", cart.Items[0].Quantity)
	}
	if cart.Items[0].AddedAt.IsZero() {
		t.Fatalf("expected addedAt stamped")
	}
}

func TestCartServiceAddItemChecksAvailability(t *testing.T) {
	fixture := newCartFixture(t,
		domain.Product{ID: "prd_low", Stock: 4, IsActive: true},
		domain.Product{ID: "prd_dead", Stock: 10, IsActive: false},
	)
	ctx := context.Background()

	if _, err := fixture.service.AddItem(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_low", Quantity: 3}); err != nil {
		t.Fatalf("add within stock: %v", err)
	}

	// Merged quantity would exceed advisory stock.
	_, err := fixture.service.AddItem(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_low", Quantity: 2})
	if !errors.Is(err, ErrCartInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	cart, _ := fixture.service.GetCart(ctx, "buyer-1")
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected cart unchanged after rejection, got %+v", cart.Items)
	}

	if _, err := fixture.service.AddItem(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_dead", Quantity: 1}); !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected unavailable for inactive product, got %v", err)
	}
	if _, err := fixture.service.AddItem(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_missing", Quantity: 1}); !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected unavailable for unknown product, got %v", err)
	}
}

func TestCartServiceUpdateItemQuantity(t *testing.T) {
	fixture := newCartFixture(t, domain.Product{ID: "prd_1", Stock: 10, IsActive: true})
	ctx := context.Background()

	if _, err := fixture.service.UpdateItemQuantity(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_1", Quantity: 2}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found for empty cart, got %v", err)
	}

	if _, err := fixture.service.AddItem(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_1", Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := fixture.service.UpdateItemQuantity(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_1", Quantity: 7})
	if err != nil {
		t.Fatalf("update quantity: %v", err)
	}
	if cart.Items[0].Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", cart.Items[0].Quantity)
	}
}

func TestCartServiceRemoveItem(t *testing.T) {
	fixture := newCartFixture(t,
		domain.Product{ID: "prd_1", Stock: 10, IsActive: true},
		domain.Product{ID: "prd_2", Stock: 10, IsActive: true},
	)
	ctx := context.Background()

	fixtureAdd := func(productID string) {
		t.Helper()
		if _, err := fixture.service.AddItem(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: productID, Quantity: 1}); err != nil {
			t.Fatalf("add %s: %v", productID, err)
		}
	}
	fixtureAdd("prd_1")
	fixtureAdd("prd_2")

	cart, err := fixture.service.RemoveItem(ctx, "buyer-1", "prd_1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != "prd_2" {
		t.Fatalf("expected only prd_2 left, got %+v", cart.Items)
	}

	if _, err := fixture.service.RemoveItem(ctx, "buyer-1", "prd_1"); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found on second removal, got %v", err)
	}
}

func TestCartServiceReplaceCartValidatesLines(t *testing.T) {
	fixture := newCartFixture(t, domain.Product{ID: "prd_1", Stock: 10, IsActive: true})
	ctx := context.Background()

	_, err := fixture.service.ReplaceCart(ctx, ReplaceCartCommand{
		BuyerID: "buyer-1",
		Items:   []CartItem{{ProductID: "prd_1", Quantity: 0}},
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}

	cart, err := fixture.service.ReplaceCart(ctx, ReplaceCartCommand{
		BuyerID: "buyer-1",
		Items:   []CartItem{{ProductID: "prd_1", Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 4 {
		t.Fatalf("unexpected cart %+v", cart.Items)
	}
	if cart.Items[0].AddedAt.IsZero() {
		t.Fatalf("expected addedAt defaulted")
	}
}

func TestCartServiceClearCart(t *testing.T) {
	fixture := newCartFixture(t, domain.Product{ID: "prd_1", Stock: 10, IsActive: true})
	ctx := context.Background()

	if _, err := fixture.service.AddItem(ctx, CartItemCommand{BuyerID: "buyer-1", ProductID: "prd_1", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := fixture.service.ClearCart(ctx, "buyer-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cart, err := fixture.service.GetCart(ctx, "buyer-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
}
