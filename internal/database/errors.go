package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		}
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint failure,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrValidation             = errors.New("validation failed")
	ErrForbidden              = errors.New("forbidden")
	ErrOutOfStock             = errors.New("out of stock")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrLockTimeout            = errors.New("lock timeout")

	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("category %w", ErrNotFound)
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)

	ErrUserBlocked       = fmt.Errorf("account is deactivated: %w", ErrForbidden)
	ErrDuplicateCategory = fmt.Errorf("category name already exists: %w", ErrConflict)
	ErrDuplicateEmail    = fmt.Errorf("email already linked to another account: %w", ErrConflict)
	ErrProductReferenced = fmt.Errorf("product is referenced by existing orders: %w", ErrConflict)
)

// OutOfStockError names the product whose stock could not cover a line item.
type OutOfStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (%s): requested %d, available %d",
		e.ProductID, e.ProductName, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error {
	return ErrOutOfStock
}

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidTransitionError records a rejected order status change.
type InvalidTransitionError struct {
	OrderID int64
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// NotFound maps sql.ErrNoRows to target and leaves other errors untouched.
func NotFound(err error, target error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return target
	}
	return err
}
