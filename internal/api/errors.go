package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/media"
)

var (
	errUnauthorized = errors.New("authentication required")
	errRateLimited  = errors.New("too many orders, try again later")
)

// errorStatus maps domain errors to an HTTP status and a stable error code.
func errorStatus(err error) (int, string) {
	var fiberErr *fiber.Error
	switch {
	case errors.Is(err, errUnauthorized),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrExpiredToken):
		return fiber.StatusUnauthorized, "unauthorized"
	case errors.Is(err, database.ErrForbidden):
		return fiber.StatusForbidden, "forbidden"
	case errors.Is(err, database.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, database.ErrValidation),
		errors.Is(err, media.ErrUnsupportedType),
		errors.Is(err, media.ErrTooLarge):
		return fiber.StatusBadRequest, "validation_error"
	case errors.Is(err, database.ErrOutOfStock):
		return fiber.StatusConflict, "out_of_stock"
	case errors.Is(err, database.ErrInvalidStateTransition):
		return fiber.StatusConflict, "invalid_state_transition"
	case errors.Is(err, database.ErrConflict):
		return fiber.StatusConflict, "conflict"
	case errors.Is(err, errRateLimited):
		return fiber.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, media.ErrUnavailable),
		errors.Is(err, database.ErrLockTimeout):
		return fiber.StatusServiceUnavailable, "unavailable"
	case errors.As(err, &fiberErr):
		return fiberErr.Code, "http_error"
	}
	return fiber.StatusInternalServerError, "internal_error"
}

func writeError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	status, code := errorStatus(err)

	message := err.Error()
	if status == fiber.StatusInternalServerError {
		logger.Error("Request failed",
			"method", c.Method(),
			"path", c.Path(),
			"err", err)
		message = "internal server error"
	}

	return c.Status(status).JSON(ErrorResponse{
		Error:   code,
		Message: message,
	})
}
