package voucher

import (
	"time"

	"github.com/google/uuid"
)

// DiscountType classifies how a voucher's value is applied.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage" // Value is a percent of subtotal
	DiscountFixed      DiscountType = "fixed"      // Value is a flat VND amount
)

// Voucher represents a discount voucher. Scope slices are empty for
// vouchers that apply to everything; a non-empty slice restricts the
// voucher to matching orders.
type Voucher struct {
	ID            uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Code          string       `json:"code" gorm:"uniqueIndex;not null"`
	DiscountType  DiscountType `json:"discount_type" gorm:"not null"`
	Value         int64        `json:"value" gorm:"not null"`
	MinOrderValue int64        `json:"min_order_value" gorm:"default:0"`
	MaxDiscount   int64        `json:"max_discount" gorm:"default:0"` // 0 means no cap; percentage only
	Quantity      int          `json:"quantity" gorm:"not null"`
	UsedCount     int          `json:"used_count" gorm:"not null;default:0"`
	StartDate     time.Time    `json:"start_date"`
	EndDate       time.Time    `json:"end_date"`
	ProductIDs    []uuid.UUID  `json:"product_ids,omitempty" gorm:"type:jsonb;serializer:json"`
	CategoryIDs   []uuid.UUID  `json:"category_ids,omitempty" gorm:"type:jsonb;serializer:json"`
	UserIDs       []uuid.UUID  `json:"user_ids,omitempty" gorm:"type:jsonb;serializer:json"`
	Active        bool         `json:"active" gorm:"default:true"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TableName returns the database table name.
func (Voucher) TableName() string {
	return "vouchers"
}

// Exhausted reports whether the voucher has no usage headroom left.
func (v *Voucher) Exhausted() bool {
	return v.UsedCount >= v.Quantity
}

// OrderContext carries the order facts a voucher is validated against.
type OrderContext struct {
	UserID   uuid.UUID
	Subtotal int64
	Items    []OrderItemRef
}

// OrderItemRef identifies one order line for scope matching.
type OrderItemRef struct {
	ProductID  uuid.UUID
	CategoryID uuid.UUID
}
