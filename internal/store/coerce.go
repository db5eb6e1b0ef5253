package store

import (
	"strings"

	"github.com/safar/storefront/internal/database"
	"github.com/shopspring/decimal"
)

// ParseAmount coerces a form value such as "1290", "1290.75" or " 12e2 " to a
// non-negative whole number, truncating any fraction.
func ParseAmount(field, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, database.NewValidationError(field, "is required")
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, database.NewValidationError(field, "must be a number")
	}
	if d.IsNegative() {
		return 0, database.NewValidationError(field, "must not be negative")
	}
	if d.GreaterThan(decimal.NewFromInt(maxAmount)) {
		return 0, database.NewValidationError(field, "is too large")
	}

	return d.Truncate(0).IntPart(), nil
}

func ParseQuantity(field, raw string) (int, error) {
	n, err := ParseAmount(field, raw)
	if err != nil {
		return 0, err
	}
	if n > maxStock {
		return 0, database.NewValidationError(field, "is too large")
	}
	return int(n), nil
}

const (
	maxAmount = 1 << 53
	maxStock  = 1<<31 - 1
)
