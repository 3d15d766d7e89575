package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a sellable product with its stock projection.
type Product struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name       string    `json:"name" gorm:"not null"`
	SKU        string    `json:"sku" gorm:"uniqueIndex;not null"`
	CategoryID uuid.UUID `json:"category_id" gorm:"type:uuid;index"`
	Price      int64     `json:"price"` // In VND
	Stock      int       `json:"stock" gorm:"not null;default:0"`
	MinStock   int       `json:"min_stock" gorm:"default:0"`
	Active     bool      `json:"active" gorm:"default:true"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Product) TableName() string {
	return "products"
}

// LowStock reports whether the product is at or below its restock threshold.
func (p *Product) LowStock() bool {
	return p.Stock <= p.MinStock
}

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementSale       MovementType = "sale"       // Committed sale decrement
	MovementRelease    MovementType = "release"    // Cancellation restore
	MovementRestock    MovementType = "restock"    // Warehouse intake
	MovementAdjustment MovementType = "adjustment" // Manual absolute correction
)

// StockMovement is an audit record for every stock change.
type StockMovement struct {
	ID        uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID uuid.UUID    `json:"product_id" gorm:"type:uuid;not null;index"`
	OrderID   *uuid.UUID   `json:"order_id,omitempty" gorm:"type:uuid;index"`
	Type      MovementType `json:"type" gorm:"not null"`
	Quantity  int          `json:"quantity"` // Signed delta applied to stock
	Reason    string       `json:"reason,omitempty"`
	ActorID   *uuid.UUID   `json:"actor_id,omitempty" gorm:"type:uuid"`
	CreatedAt time.Time    `json:"created_at"`
}

// TableName returns the database table name.
func (StockMovement) TableName() string {
	return "stock_movements"
}

// SaleItem is one line of a sale to commit or release against stock.
type SaleItem struct {
	ProductID uuid.UUID
	Quantity  int
}
