package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the product is not in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductUnavailable indicates the product cannot be carted.
	ErrCartProductUnavailable = errors.New("cart: product unavailable")
	// ErrCartInsufficientStock flags quantities above the advisory stock level.
	ErrCartInsufficientStock = errors.New("cart: insufficient stock")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, buyerID string) (Cart, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return Cart{}, fmt.Errorf("%w: buyer id is required", ErrCartInvalidInput)
	}
	return s.carts.GetCart(ctx, buyerID)
}

func (s *cartService) ReplaceCart(ctx context.Context, cmd ReplaceCartCommand) (Cart, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return Cart{}, fmt.Errorf("%w: buyer id is required", ErrCartInvalidInput)
	}

	now := s.now()
	items := make([]domain.CartItem, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Quantity < 1 {
			return Cart{}, fmt.Errorf("%w: each item needs a product id and positive quantity", ErrCartInvalidInput)
		}
		if err := s.checkAvailability(ctx, productID, item.Quantity); err != nil {
			return Cart{}, err
		}
		addedAt := item.AddedAt
		if addedAt.IsZero() {
			addedAt = now
		}
		items = append(items, domain.CartItem{ProductID: productID, Quantity: item.Quantity, AddedAt: addedAt})
	}

	return s.carts.ReplaceItems(ctx, buyerID, items)
}

func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	buyerID, productID, err := s.validateItemCommand(cmd)
	if err != nil {
		return Cart{}, err
	}

	cart, err := s.carts.GetCart(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}

	quantity := cmd.Quantity
	for _, item := range cart.Items {
		if item.ProductID == productID {
			quantity += item.Quantity
			break
		}
	}
	if err := s.checkAvailability(ctx, productID, quantity); err != nil {
		return Cart{}, err
	}

	now := s.now()
	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: productID, Quantity: quantity, AddedAt: now})
	}

	return s.carts.ReplaceItems(ctx, buyerID, cart.Items)
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	buyerID, productID, err := s.validateItemCommand(cmd)
	if err != nil {
		return Cart{}, err
	}
	if err := s.checkAvailability(ctx, productID, cmd.Quantity); err != nil {
		return Cart{}, err
	}

	cart, err := s.carts.GetCart(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}

	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = cmd.Quantity
			return s.carts.ReplaceItems(ctx, buyerID, cart.Items)
		}
	}
	return Cart{}, fmt.Errorf("%w: product %s", ErrCartItemNotFound, productID)
}

func (s *cartService) RemoveItem(ctx context.Context, buyerID, productID string) (Cart, error) {
	buyerID = strings.TrimSpace(buyerID)
	productID = strings.TrimSpace(productID)
	if buyerID == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: buyer id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}

	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ProductID == productID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return Cart{}, fmt.Errorf("%w: product %s", ErrCartItemNotFound, productID)
	}

	return s.carts.ReplaceItems(ctx, buyerID, kept)
}

func (s *cartService) ClearCart(ctx context.Context, buyerID string) error {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return fmt.Errorf("%w: buyer id is required", ErrCartInvalidInput)
	}
	return s.carts.Clear(ctx, buyerID)
}

func (s *cartService) validateItemCommand(cmd CartItemCommand) (string, string, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if buyerID == "" {
		return "", "", fmt.Errorf("%w: buyer id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return "", "", fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return "", "", fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	return buyerID, productID, nil
}

// checkAvailability is advisory: placement revalidates atomically, this just
// keeps obviously dead items out of the cart.
func (s *cartService) checkAvailability(ctx context.Context, productID string, quantity int64) error {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return fmt.Errorf("%w: product %s", ErrCartProductUnavailable, productID)
		}
		return err
	}
	if !product.IsActive {
		return fmt.Errorf("%w: product %s is not active", ErrCartProductUnavailable, productID)
	}
	if product.Stock < quantity {
		return fmt.Errorf("%w: product %s has %d left", ErrCartInsufficientStock, productID, product.Stock)
	}
	return nil
}

func (s *cartService) now() time.Time {
	return s.clock()
}
