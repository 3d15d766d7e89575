package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for product data access.
type Repository interface {
	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) ([]*Product, error)
	UpdateProduct(ctx context.Context, product *Product) error

	// CommitSale decrements stock for every item, all-or-nothing. Each
	// decrement is conditional on sufficient stock; the first shortfall
	// aborts the transaction and reports the failing line.
	CommitSale(ctx context.Context, orderID uuid.UUID, items []SaleItem) error

	// ReleaseSale restores stock previously committed for an order.
	ReleaseSale(ctx context.Context, orderID uuid.UUID, items []SaleItem) error

	// AdjustStock applies a manual restock or absolute adjustment and
	// records the movement.
	AdjustStock(ctx context.Context, productID uuid.UUID, movement *StockMovement, newStock int) error

	ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]*StockMovement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new catalog repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateProduct(ctx context.Context, product *Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	var product Product
	err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (r *repository) GetProducts(ctx context.Context, ids []uuid.UUID) ([]*Product, error) {
	var products []*Product
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error
	return products, err
}

func (r *repository) UpdateProduct(ctx context.Context, product *Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *repository) CommitSale(ctx context.Context, orderID uuid.UUID, items []SaleItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			// Conditional decrement: only applies when stock suffices.
			// Read-then-write would lose updates under concurrent checkouts.
			res := tx.Model(&Product{}).
				Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
				Update("stock", gorm.Expr("stock - ?", item.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Rolling back undoes decrements already applied for
				// earlier lines of this sale.
				var product Product
				if err := tx.First(&product, "id = ?", item.ProductID).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return ErrProductNotFound
					}
					return err
				}
				return &InsufficientStockError{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Available: product.Stock,
				}
			}

			movement := &StockMovement{
				ProductID: item.ProductID,
				OrderID:   &orderID,
				Type:      MovementSale,
				Quantity:  -item.Quantity,
			}
			if err := tx.Create(movement).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) ReleaseSale(ctx context.Context, orderID uuid.UUID, items []SaleItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			res := tx.Model(&Product{}).
				Where("id = ?", item.ProductID).
				Update("stock", gorm.Expr("stock + ?", item.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrProductNotFound
			}

			movement := &StockMovement{
				ProductID: item.ProductID,
				OrderID:   &orderID,
				Type:      MovementRelease,
				Quantity:  item.Quantity,
			}
			if err := tx.Create(movement).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) AdjustStock(ctx context.Context, productID uuid.UUID, movement *StockMovement, newStock int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Product{}).
			Where("id = ?", productID).
			Update("stock", newStock)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrProductNotFound
		}
		return tx.Create(movement).Error
	})
}

func (r *repository) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]*StockMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	var movements []*StockMovement
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&movements).Error
	return movements, err
}
