package checkout

import (
	"errors"
	"fmt"

	"stationerypos/internal/store"
)

// ErrEmptyCart is returned before any storage call when the cart has no lines.
var ErrEmptyCart = errors.New("No items provided")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("Product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == store.ErrNotFound
}

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Not enough stock for %s", e.ProductName)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == store.ErrInsufficientStock
}

// PersistenceError means the sale did not complete because the store failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// isEngineError reports whether err already carries the engine taxonomy
// rather than being a raw store or driver error.
func isEngineError(err error) bool {
	var (
		validation *ValidationError
		notFound   *ProductNotFoundError
		shortage   *InsufficientStockError
		persist    *PersistenceError
	)
	return errors.Is(err, ErrEmptyCart) ||
		errors.As(err, &validation) ||
		errors.As(err, &notFound) ||
		errors.As(err, &shortage) ||
		errors.As(err, &persist)
}
