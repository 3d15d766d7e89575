package voucher

import "errors"

// Module errors. Validation errors carry the specific redemption
// failure so checkout can surface a precise reason.
var (
	ErrVoucherNotFound      = errors.New("voucher not found")
	ErrVoucherInactive      = errors.New("voucher is not active")
	ErrVoucherNotStarted    = errors.New("voucher is not yet valid")
	ErrVoucherExpired       = errors.New("voucher has expired")
	ErrVoucherExhausted     = errors.New("voucher usage limit reached")
	ErrMinOrderNotMet       = errors.New("order subtotal below voucher minimum")
	ErrVoucherNotApplicable = errors.New("voucher does not apply to this order")
	ErrInvalidVoucher       = errors.New("invalid voucher definition")
	ErrDuplicateCode        = errors.New("voucher code already exists")
)
