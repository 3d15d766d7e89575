package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lapstore/server/internal/module/catalog"
)

// ProductSource resolves product facts needed by cart operations.
type ProductSource interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
}

// Service implements cart operations.
type Service struct {
	repo     Repository
	products ProductSource
	logger   *zap.Logger
}

// NewService creates a new cart service.
func NewService(repo Repository, products ProductSource, logger *zap.Logger) *Service {
	return &Service{repo: repo, products: products, logger: logger}
}

// Get returns the user's cart with its subtotal.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	items, err := s.repo.GetItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	var subtotal int64
	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	return &View{Items: items, Subtotal: subtotal}, nil
}

// AddItem adds a product to the cart, accumulating quantity if the
// product is already present.
func (s *Service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Active {
		return fmt.Errorf("%w: product is not available", catalog.ErrProductNotFound)
	}

	item := &Item{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: product.Price,
	}
	if err := s.repo.UpsertItem(ctx, item); err != nil {
		return err
	}

	s.logger.Debug("cart item added",
		zap.String("user_id", userID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity),
	)
	return nil
}

// UpdateItem sets an item's quantity. Zero removes the item.
func (s *Service) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	if quantity == 0 {
		return s.repo.RemoveItem(ctx, userID, productID)
	}
	return s.repo.UpdateQuantity(ctx, userID, productID, quantity)
}

// RemoveItem removes a product from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	return s.repo.RemoveItem(ctx, userID, productID)
}

// Items returns the raw cart lines, erroring on an empty cart. Checkout
// uses this as its input snapshot.
func (s *Service) Items(ctx context.Context, userID uuid.UUID) ([]*Item, error) {
	items, err := s.repo.GetItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	return items, nil
}

// Clear empties the user's cart. Called only once a sale is confirmed
// (cash order created, or gateway payment succeeded).
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return err
	}
	s.logger.Debug("cart cleared", zap.String("user_id", userID.String()))
	return nil
}
