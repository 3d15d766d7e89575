package voucher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service implements voucher validation and the reservation ledger.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new voucher service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Create validates and persists a new voucher. Type/value consistency is
// enforced here, not at redemption time.
func (s *Service) Create(ctx context.Context, voucher *Voucher) error {
	voucher.Code = strings.ToUpper(strings.TrimSpace(voucher.Code))
	if voucher.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidVoucher)
	}
	switch voucher.DiscountType {
	case DiscountPercentage:
		if voucher.Value <= 0 || voucher.Value > 100 {
			return fmt.Errorf("%w: percentage value must be in (0, 100]", ErrInvalidVoucher)
		}
	case DiscountFixed:
		if voucher.Value <= 0 {
			return fmt.Errorf("%w: fixed value must be positive", ErrInvalidVoucher)
		}
		if voucher.MaxDiscount != 0 {
			return fmt.Errorf("%w: max discount only applies to percentage vouchers", ErrInvalidVoucher)
		}
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalidVoucher, voucher.DiscountType)
	}
	if voucher.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidVoucher)
	}
	if !voucher.EndDate.After(voucher.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", ErrInvalidVoucher)
	}

	if err := s.repo.Create(ctx, voucher); err != nil {
		return err
	}
	s.logger.Info("voucher created",
		zap.String("code", voucher.Code),
		zap.String("type", string(voucher.DiscountType)),
		zap.Int("quantity", voucher.Quantity),
	)
	return nil
}

// Validate checks a code against the order context and computes the
// discount amount. It performs no side effects; Reserve claims a usage
// unit separately.
func (s *Service) Validate(ctx context.Context, code string, order OrderContext) (*Voucher, int64, error) {
	v, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	switch {
	case !v.Active:
		return nil, 0, ErrVoucherInactive
	case now.Before(v.StartDate):
		return nil, 0, ErrVoucherNotStarted
	case now.After(v.EndDate):
		return nil, 0, ErrVoucherExpired
	case v.Exhausted():
		return nil, 0, ErrVoucherExhausted
	case order.Subtotal < v.MinOrderValue:
		return nil, 0, ErrMinOrderNotMet
	}

	if !userInScope(v, order.UserID) {
		return nil, 0, ErrVoucherNotApplicable
	}
	if !itemsInScope(v, order.Items) {
		return nil, 0, ErrVoucherNotApplicable
	}

	return v, s.discount(v, order.Subtotal), nil
}

// Reserve claims one usage unit of the voucher.
func (s *Service) Reserve(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Reserve(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("voucher reserved", zap.String("voucher_id", id.String()))
	return nil
}

// Release returns one usage unit, compensating a failed or expired
// payment after an optimistic reservation.
func (s *Service) Release(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Release(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("voucher released", zap.String("voucher_id", id.String()))
	return nil
}

// GetByCode returns a voucher by its code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Voucher, error) {
	return s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// List returns vouchers, optionally restricted to active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Voucher, error) {
	return s.repo.List(ctx, activeOnly)
}

// Deactivate turns a voucher off without touching its usage counter.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.Deactivate(ctx, id)
}

func (s *Service) discount(v *Voucher, subtotal int64) int64 {
	switch v.DiscountType {
	case DiscountPercentage:
		d := subtotal * v.Value / 100
		if v.MaxDiscount > 0 && d > v.MaxDiscount {
			d = v.MaxDiscount
		}
		return d
	case DiscountFixed:
		return v.Value
	}
	return 0
}

func userInScope(v *Voucher, userID uuid.UUID) bool {
	if len(v.UserIDs) == 0 {
		return true
	}
	for _, id := range v.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// itemsInScope reports whether the order contains at least one item whose
// product or category is in the voucher's applicable sets. Both sets
// empty means the voucher applies to all items.
func itemsInScope(v *Voucher, items []OrderItemRef) bool {
	if len(v.ProductIDs) == 0 && len(v.CategoryIDs) == 0 {
		return true
	}
	products := make(map[uuid.UUID]struct{}, len(v.ProductIDs))
	for _, id := range v.ProductIDs {
		products[id] = struct{}{}
	}
	categories := make(map[uuid.UUID]struct{}, len(v.CategoryIDs))
	for _, id := range v.CategoryIDs {
		categories[id] = struct{}{}
	}
	for _, item := range items {
		if _, ok := products[item.ProductID]; ok {
			return true
		}
		if _, ok := categories[item.CategoryID]; ok {
			return true
		}
	}
	return false
}
