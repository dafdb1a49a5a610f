package reconciliation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrUnauthorized  = errors.New("failure token does not match order")
	ErrInvalidReason = errors.New("failure reason must be FAILED or ABANDONED")
)

// InsufficientStockError aborts a success transition that would need more
// units of ProductID than remain.
type InsufficientStockError struct {
	ProductID string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}
