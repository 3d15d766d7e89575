package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service implements product and inventory operations. Stock is only
// decremented at the point of sale certainty (payment success or
// fulfillment start), never at provisional order creation.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new catalog service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// GetProduct returns a product by ID.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// GetProducts returns the products with the given IDs.
func (s *Service) GetProducts(ctx context.Context, ids []uuid.UUID) ([]*Product, error) {
	return s.repo.GetProducts(ctx, ids)
}

// CreateProduct creates a new product.
func (s *Service) CreateProduct(ctx context.Context, product *Product) error {
	if product.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidQuantity)
	}
	if product.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidQuantity)
	}
	return s.repo.CreateProduct(ctx, product)
}

// CheckAvailability verifies that every sale line can currently be
// satisfied. This is an advisory precheck only; stock may change before
// commit, so CommitSale re-verifies with conditional updates.
func (s *Service) CheckAvailability(ctx context.Context, items []SaleItem) error {
	if err := validateItems(items); err != nil {
		return err
	}

	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}

	byID := make(map[uuid.UUID]*Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			return ErrProductNotFound
		}
		if product.Stock < item.Quantity {
			return &InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: product.Stock,
			}
		}
	}
	return nil
}

// CommitSale atomically decrements stock for a confirmed sale.
// All-or-nothing: a shortfall on any line leaves every product untouched.
func (s *Service) CommitSale(ctx context.Context, orderID uuid.UUID, items []SaleItem) error {
	if err := validateItems(items); err != nil {
		return err
	}

	if err := s.repo.CommitSale(ctx, orderID, items); err != nil {
		return err
	}

	s.logger.Info("sale committed",
		zap.String("order_id", orderID.String()),
		zap.Int("lines", len(items)),
	)
	return nil
}

// ReleaseSale restores stock after a committed sale is cancelled.
func (s *Service) ReleaseSale(ctx context.Context, orderID uuid.UUID, items []SaleItem) error {
	if err := validateItems(items); err != nil {
		return err
	}

	if err := s.repo.ReleaseSale(ctx, orderID, items); err != nil {
		return err
	}

	s.logger.Info("sale released",
		zap.String("order_id", orderID.String()),
		zap.Int("lines", len(items)),
	)
	return nil
}

// Restock increases a product's stock by quantity.
func (s *Service) Restock(ctx context.Context, productID uuid.UUID, quantity int, reason string, actorID uuid.UUID) (*Product, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	newStock := product.Stock + quantity
	movement := &StockMovement{
		ProductID: productID,
		Type:      MovementRestock,
		Quantity:  quantity,
		Reason:    reason,
		ActorID:   &actorID,
	}
	if err := s.repo.AdjustStock(ctx, productID, movement, newStock); err != nil {
		return nil, err
	}

	product.Stock = newStock
	if product.LowStock() {
		s.logger.Warn("product still at low stock after restock",
			zap.String("product_id", productID.String()),
			zap.Int("stock", newStock),
			zap.Int("min_stock", product.MinStock),
		)
	}
	return product, nil
}

// AdjustStock sets a product's stock to an absolute value.
func (s *Service) AdjustStock(ctx context.Context, productID uuid.UUID, newStock int, reason string, actorID uuid.UUID) (*Product, error) {
	if newStock < 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	movement := &StockMovement{
		ProductID: productID,
		Type:      MovementAdjustment,
		Quantity:  newStock - product.Stock,
		Reason:    reason,
		ActorID:   &actorID,
	}
	if err := s.repo.AdjustStock(ctx, productID, movement, newStock); err != nil {
		return nil, err
	}

	product.Stock = newStock
	return product, nil
}

// ListMovements returns recent stock movements for a product.
func (s *Service) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]*StockMovement, error) {
	return s.repo.ListMovements(ctx, productID, limit)
}

func validateItems(items []SaleItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidQuantity)
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}
