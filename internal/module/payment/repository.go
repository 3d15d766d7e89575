package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the payment persistence interface.
type Repository interface {
	CreateAttempt(ctx context.Context, p *Payment) error
	GetAttemptByTxnID(ctx context.Context, txnID string) (*Payment, error)
	UpdateAttempt(ctx context.Context, id uuid.UUID, txnID string, status AttemptStatus, failureReason string) error
	ListAttemptsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)

	CreateWebhookEvent(ctx context.Context, e *WebhookEvent) error
	GetWebhookEvent(ctx context.Context, providerName, eventID string) (*WebhookEvent, error)
	MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, processErr error) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateAttempt(ctx context.Context, p *Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repository) GetAttemptByTxnID(ctx context.Context, txnID string) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).Where("txn_id = ?", txnID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) UpdateAttempt(ctx context.Context, id uuid.UUID, txnID string, status AttemptStatus, failureReason string) error {
	updates := map[string]any{"status": status}
	if txnID != "" {
		updates["txn_id"] = txnID
	}
	if failureReason != "" {
		updates["failure_reason"] = failureReason
	}
	return r.db.WithContext(ctx).Model(&Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) ListAttemptsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	var attempts []*Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&attempts).Error
	return attempts, err
}

// CreateWebhookEvent inserts the dedup record for a delivery. A second
// delivery of the same (provider, event_id) hits the unique index and
// comes back as ErrDuplicateEvent.
func (r *repository) CreateWebhookEvent(ctx context.Context, e *WebhookEvent) error {
	err := r.db.WithContext(ctx).Create(e).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEvent
	}
	return err
}

func (r *repository) GetWebhookEvent(ctx context.Context, providerName, eventID string) (*WebhookEvent, error) {
	var e WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", providerName, eventID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repository) MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, processErr error) error {
	now := time.Now()
	// process_error is cleared on a successful retry so redeliveries of
	// an applied event ack as duplicates.
	updates := map[string]any{"processed_at": now, "process_error": ""}
	if processErr != nil {
		updates["process_error"] = processErr.Error()
	}
	return r.db.WithContext(ctx).Model(&WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
