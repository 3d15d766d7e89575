package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for order data access.
type Repository interface {
	Create(ctx context.Context, order *Order, entry *TimelineEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*Order, error)
	GetByProviderTxnID(ctx context.Context, txnID string) (*Order, error)
	List(ctx context.Context, userID uuid.UUID, status *Status, page, pageSize int) ([]*Order, int64, error)

	// SetProviderRequest stores gateway correlation fields after a
	// payment request is created.
	SetProviderRequest(ctx context.Context, id uuid.UUID, txnID, token string) error
	SetVoucherReserved(ctx context.Context, id uuid.UUID, reserved bool) error
	SetStockCommitted(ctx context.Context, id uuid.UUID, committed bool) error

	// ClaimStockCommit flips stock_committed only while it is false, so
	// exactly one writer performs the inventory decrement. Returns false
	// when another writer holds or completed the commit.
	ClaimStockCommit(ctx context.Context, id uuid.UUID) (bool, error)

	// TransitionPaymentStatus flips payment_status only if the current
	// value is one of `from`. Returns false when another writer got
	// there first; that is the per-order serialization point for
	// duplicate callbacks.
	TransitionPaymentStatus(ctx context.Context, id uuid.UUID, from []PaymentStatus, to PaymentStatus) (bool, error)

	// TransitionStatus flips status only if the current value matches.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)

	AppendTimeline(ctx context.Context, entry *TimelineEntry) error
	Timeline(ctx context.Context, orderID uuid.UUID) ([]*TimelineEntry, error)

	// ListExpiredPayable returns gateway orders still awaiting payment
	// whose payment window opened before the cutoff.
	ListExpiredPayable(ctx context.Context, before time.Time) ([]*Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, order *Order, entry *TimelineEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		entry.OrderID = order.ID
		return tx.Create(entry).Error
	})
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByOrderNo(ctx context.Context, orderNo string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).Preload("Items").First(&order, "order_no = ?", orderNo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByProviderTxnID(ctx context.Context, txnID string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).Preload("Items").First(&order, "provider_txn_id = ?", txnID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, userID uuid.UUID, status *Status, page, pageSize int) ([]*Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	q := r.db.WithContext(ctx).Model(&Order{}).Where("user_id = ?", userID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []*Order
	err := q.Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	return orders, total, err
}

func (r *repository) SetProviderRequest(ctx context.Context, id uuid.UUID, txnID, token string) error {
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"provider_txn_id": txnID,
			"provider_token":  token,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) SetVoucherReserved(ctx context.Context, id uuid.UUID, reserved bool) error {
	return r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", id).
		Update("voucher_reserved", reserved).Error
}

func (r *repository) SetStockCommitted(ctx context.Context, id uuid.UUID, committed bool) error {
	return r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", id).
		Update("stock_committed", committed).Error
}

func (r *repository) ClaimStockCommit(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND stock_committed = ?", id, false).
		Update("stock_committed", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) TransitionPaymentStatus(ctx context.Context, id uuid.UUID, from []PaymentStatus, to PaymentStatus) (bool, error) {
	updates := map[string]any{"payment_status": to}
	if to == PaymentSuccess {
		updates["paid_at"] = time.Now()
	}
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND payment_status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	updates := map[string]any{"status": to}
	if to == StatusCancelled {
		updates["cancelled_at"] = time.Now()
	}
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AppendTimeline(ctx context.Context, entry *TimelineEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Timeline(ctx context.Context, orderID uuid.UUID) ([]*TimelineEntry, error) {
	var entries []*TimelineEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) ListExpiredPayable(ctx context.Context, before time.Time) ([]*Order, error) {
	var orders []*Order
	err := r.db.WithContext(ctx).
		Where("payment_method <> ?", MethodCash).
		Where("payment_status IN ?", []PaymentStatus{PaymentPending, PaymentProcessing}).
		Where("status = ?", StatusNew).
		Where("created_at < ?", before).
		Find(&orders).Error
	return orders, err
}
