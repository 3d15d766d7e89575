package order

import "errors"

// Module errors.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidTransition  = errors.New("invalid order state transition")
	ErrInvalidMethod      = errors.New("unknown payment method")
	ErrOrderNotCancelable = errors.New("order can no longer be cancelled")
	ErrNotGatewayOrder    = errors.New("order is not gateway-paid")
	ErrOrderNotPayable    = errors.New("order is not awaiting payment")
	ErrForbidden          = errors.New("order belongs to another user")
)
