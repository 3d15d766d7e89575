package voucher

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for voucher data access.
type Repository interface {
	Create(ctx context.Context, voucher *Voucher) error
	GetByID(ctx context.Context, id uuid.UUID) (*Voucher, error)
	GetByCode(ctx context.Context, code string) (*Voucher, error)
	List(ctx context.Context, activeOnly bool) ([]*Voucher, error)
	Deactivate(ctx context.Context, id uuid.UUID) error

	// Reserve increments used_count only while headroom remains.
	// Returns ErrVoucherExhausted when the quota is already consumed.
	Reserve(ctx context.Context, id uuid.UUID) error

	// Release decrements used_count, floored at zero.
	Release(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new voucher repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, voucher *Voucher) error {
	err := r.db.WithContext(ctx).Create(voucher).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateCode
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Voucher, error) {
	var v Voucher
	err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoucherNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Voucher, error) {
	var v Voucher
	err := r.db.WithContext(ctx).First(&v, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoucherNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]*Voucher, error) {
	var vouchers []*Voucher
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	err := q.Find(&vouchers).Error
	return vouchers, err
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&Voucher{}).
		Where("id = ?", id).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

func (r *repository) Reserve(ctx context.Context, id uuid.UUID) error {
	// Conditional increment. Read-then-write would allow concurrent
	// checkouts to push used_count past quantity.
	res := r.db.WithContext(ctx).Model(&Voucher{}).
		Where("id = ? AND used_count < quantity", id).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var v Voucher
		if err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVoucherNotFound
			}
			return err
		}
		return ErrVoucherExhausted
	}
	return nil
}

func (r *repository) Release(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&Voucher{}).
		Where("id = ? AND used_count > 0", id).
		Update("used_count", gorm.Expr("used_count - 1"))
	if res.Error != nil {
		return res.Error
	}
	// RowsAffected == 0 means the counter was already at zero; releasing
	// twice is a no-op rather than an error.
	return nil
}
