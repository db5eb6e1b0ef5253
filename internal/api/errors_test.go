package api

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/media"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthorized", errUnauthorized, fiber.StatusUnauthorized},
		{"invalid token", identity.ErrInvalidToken, fiber.StatusUnauthorized},
		{"blocked user", database.ErrUserBlocked, fiber.StatusForbidden},
		{"missing order", database.ErrOrderNotFound, fiber.StatusNotFound},
		{"validation", database.NewValidationError("name", "is required"), fiber.StatusBadRequest},
		{"bad image", fmt.Errorf("upload: %w", media.ErrUnsupportedType), fiber.StatusBadRequest},
		{"duplicate category", database.ErrDuplicateCategory, fiber.StatusConflict},
		{"referenced product", database.ErrProductReferenced, fiber.StatusConflict},
		{"out of stock", &database.OutOfStockError{ProductID: 1}, fiber.StatusConflict},
		{"transition", &database.InvalidTransitionError{OrderID: 1}, fiber.StatusConflict},
		{"rate limited", errRateLimited, fiber.StatusTooManyRequests},
		{"media down", media.ErrUnavailable, fiber.StatusServiceUnavailable},
		{"fiber error", fiber.ErrRequestEntityTooLarge, fiber.StatusRequestEntityTooLarge},
		{"unknown", errBoom, fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := errorStatus(tt.err); got != tt.status {
				t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.status)
			}
		})
	}
}
