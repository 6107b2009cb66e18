package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrEmptyCart              = errors.New("order must contain at least one item")
	ErrBookNotFound           = errors.New("book not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStatus          = errors.New("invalid status value (Pending, Completed, Cancelled)")
	ErrInvalidTransition      = errors.New("order status is terminal")
	ErrForbidden              = errors.New("access forbidden")
	ErrUnauthenticated        = errors.New("authentication required")
	ErrDuplicateRequest       = errors.New("duplicate request")
	ErrInvalidStockAdjustment = errors.New("stock adjustment would make stock negative")
	ErrStorageFailure         = errors.New("storage failure")
)

// InsufficientStockError reports availability for the first line that could not be reserved.
type InsufficientStockError struct {
	BookID    int64
	Title     string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %d: available %d, requested %d", e.BookID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// StorageError marks a failure to process a valid request.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageFailure, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

var businessErrors = []error{
	ErrInvalidQuantity,
	ErrEmptyCart,
	ErrBookNotFound,
	ErrInsufficientStock,
	ErrOrderNotFound,
	ErrInvalidStatus,
	ErrInvalidTransition,
	ErrForbidden,
	ErrUnauthenticated,
	ErrDuplicateRequest,
	ErrInvalidStockAdjustment,
}

// IsBusinessError reports whether err is a rejection of the request itself
// rather than a failure of the system.
func IsBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// AsStorageFailure passes business errors through unchanged and wraps
// anything else in a StorageError.
func AsStorageFailure(op string, err error) error {
	if err == nil || IsBusinessError(err) || errors.Is(err, ErrStorageFailure) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
