package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Module errors.
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// InsufficientStockError reports which product ran short and how many
// units remain, so checkout can return a specific reason.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is makes the typed error match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
