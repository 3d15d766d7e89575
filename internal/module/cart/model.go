package cart

import (
	"time"

	"github.com/google/uuid"
)

// Item is one product line in a user's cart. UnitPrice is snapshotted
// when the item is added so the cart view stays stable; checkout
// re-reads the current price when it turns the cart into an order.
type Item struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product"`
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	UnitPrice int64     `json:"unit_price"` // In VND
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Item) TableName() string {
	return "cart_items"
}

// View is the cart as returned to clients.
type View struct {
	Items    []*Item `json:"items"`
	Subtotal int64   `json:"subtotal"`
}
