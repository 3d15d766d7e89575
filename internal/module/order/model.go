package order

import (
	"time"

	"github.com/google/uuid"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusShipping   Status = "shipping"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus is the payment state of an order, owned by the payment
// reconciliation flow.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSuccess    PaymentStatus = "success"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	MethodCash    PaymentMethod = "cash"
	MethodCard    PaymentMethod = "card"
	MethodEWallet PaymentMethod = "ewallet"
	MethodVNPay   PaymentMethod = "vnpay"
	MethodMoMo    PaymentMethod = "momo"
	MethodZaloPay PaymentMethod = "zalopay"
)

// Gateway reports whether the method settles through an external
// payment gateway (everything except cash on delivery).
func (m PaymentMethod) Gateway() bool {
	return m != MethodCash
}

// ValidMethod reports whether m is a known payment method.
func ValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodCard, MethodEWallet, MethodVNPay, MethodMoMo, MethodZaloPay:
		return true
	}
	return false
}

// ShippingAddress is the delivery snapshot copied onto the order at
// checkout. Later edits to the user's address book never change it.
type ShippingAddress struct {
	RecipientName string `json:"recipient_name" gorm:"column:ship_name"`
	Phone         string `json:"phone" gorm:"column:ship_phone"`
	AddressLine   string `json:"address_line" gorm:"column:ship_address"`
	Ward          string `json:"ward,omitempty" gorm:"column:ship_ward"`
	District      string `json:"district,omitempty" gorm:"column:ship_district"`
	City          string `json:"city" gorm:"column:ship_city"`
}

// Order is the durable record of a checkout.
type Order struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderNo string    `json:"order_no" gorm:"uniqueIndex;not null"`
	UserID  uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`

	ShippingAddress ShippingAddress `json:"shipping_address" gorm:"embedded"`
	Items           []Item          `json:"items" gorm:"foreignKey:OrderID"`

	Subtotal    int64      `json:"subtotal"`     // In VND
	ShippingFee int64      `json:"shipping_fee"` // In VND
	VoucherID   *uuid.UUID `json:"voucher_id,omitempty" gorm:"type:uuid"`
	VoucherCode string     `json:"voucher_code,omitempty"`
	Discount    int64      `json:"discount"`
	Total       int64      `json:"total"` // max(0, subtotal + shipping - discount)

	PaymentMethod PaymentMethod `json:"payment_method" gorm:"not null"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"not null;default:'pending'"`
	Status        Status        `json:"status" gorm:"not null;default:'new';index"`

	// Gateway correlation fields, set once a payment request is created.
	ProviderTxnID string `json:"provider_txn_id,omitempty" gorm:"index"`
	ProviderToken string `json:"-"`

	// Reconciliation bookkeeping. VoucherReserved tracks whether this
	// order currently holds a usage unit; StockCommitted whether its
	// stock decrement has been applied.
	VoucherReserved bool `json:"-"`
	StockCommitted  bool `json:"-"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// Terminal reports whether the order can no longer change state.
func (o *Order) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

// Item is one order line with its price snapshot.
type Item struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID     uuid.UUID `json:"-" gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID `json:"product_id" gorm:"type:uuid;not null"`
	CategoryID  uuid.UUID `json:"category_id" gorm:"type:uuid"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	UnitPrice   int64     `json:"unit_price"` // Price snapshot at checkout, VND
	Subtotal    int64     `json:"subtotal"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (Item) TableName() string {
	return "order_items"
}

// TimelineEntry is one append-only history record for an order.
type TimelineEntry struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID   uuid.UUID `json:"-" gorm:"type:uuid;not null;index"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Actor     string    `json:"actor"` // "user", "admin", "system", or a provider name
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (TimelineEntry) TableName() string {
	return "order_timeline"
}
