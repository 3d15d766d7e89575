package payment

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is the state of one payment attempt at a gateway.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// Payment is one attempt to collect an order's total through a gateway.
// An order can accumulate several attempts across retries; at most one
// ends up successful.
type Payment struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID  uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	Provider string    `json:"provider" gorm:"not null"`
	TxnID    string    `json:"txn_id" gorm:"index"` // Provider correlation key

	Amount        int64         `json:"amount"` // In VND
	Status        AttemptStatus `json:"status" gorm:"not null;default:'pending'"`
	FailureReason string        `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Payment) TableName() string {
	return "payments"
}

// WebhookEvent is the dedup record for one provider notification. The
// (provider, event_id) unique index is what makes callback processing
// idempotent under gateway redelivery.
type WebhookEvent struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Provider string    `json:"provider" gorm:"not null;uniqueIndex:idx_webhook_provider_event"`
	EventID  string    `json:"event_id" gorm:"not null;uniqueIndex:idx_webhook_provider_event"`

	Payload      string     `json:"-"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ProcessError string     `json:"process_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
