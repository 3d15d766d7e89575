package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for cart data access.
type Repository interface {
	GetItems(ctx context.Context, userID uuid.UUID) ([]*Item, error)
	GetItem(ctx context.Context, userID, productID uuid.UUID) (*Item, error)
	UpsertItem(ctx context.Context, item *Item) error
	UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new cart repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetItems(ctx context.Context, userID uuid.UUID) ([]*Item, error) {
	var items []*Item
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) GetItem(ctx context.Context, userID, productID uuid.UUID) (*Item, error) {
	var item Item
	err := r.db.WithContext(ctx).
		First(&item, "user_id = ? AND product_id = ?", userID, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) UpsertItem(ctx context.Context, item *Item) error {
	// Adding the same product again accumulates quantity and refreshes
	// the price snapshot.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("cart_items.quantity + ?", item.Quantity),
			"unit_price": item.UnitPrice,
			"updated_at": gorm.Expr("NOW()"),
		}),
	}).Create(item).Error
}

func (r *repository) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	res := r.db.WithContext(ctx).Model(&Item{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *repository) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&Item{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *repository) Clear(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&Item{}).Error
}
