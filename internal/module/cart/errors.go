package cart

import "errors"

// Module errors.
var (
	ErrItemNotFound    = errors.New("cart item not found")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)
