package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

const (
	// ClaimsContextKey holds the verified *identity.Claims.
	ClaimsContextKey = "claims"
	// UserContextKey holds the synced local *models.User.
	UserContextKey = "user"
)

// Authenticate verifies the bearer token and stores its claims for later
// handlers.
func (s *Server) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return errUnauthorized
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return errUnauthorized
		}

		claims, err := s.verifier.Verify(c.UserContext(), strings.TrimSpace(token))
		if err != nil {
			return err
		}

		c.Locals(ClaimsContextKey, claims)
		return c.Next()
	}
}

// RequireUser syncs the caller's local record from the verified claims and
// refuses deactivated accounts.
func (s *Server) RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := claimsFrom(c)
		if claims == nil {
			return errUnauthorized
		}

		user, err := s.store.SyncUser(c.UserContext(), store.SyncUserRequest{
			ExternalID: claims.Subject,
			Email:      claims.Email,
			Role:       claims.Role(),
		})
		if err != nil {
			return err
		}

		c.Locals(UserContextKey, user)
		return c.Next()
	}
}

// RequireAdmin admits callers whose token carries the ADMIN role.
func (s *Server) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !identity.HasRole(claimsFrom(c), models.RoleAdmin) {
			return database.ErrForbidden
		}
		return c.Next()
	}
}

// OrderRateLimit throttles order placement per local user. Limiter failures
// let the request through.
func (s *Server) OrderRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := userFrom(c)
		if user == nil {
			return errUnauthorized
		}

		result, err := s.limiter.Allow(c.UserContext(), strconv.FormatInt(user.ID, 10))
		if err != nil {
			s.logger.Warn("Rate limiter unavailable", "user_id", user.ID, "err", err)
			return c.Next()
		}

		if result.Remaining >= 0 {
			c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(result.RetryAfter.Round(time.Second).Seconds())))
			}
			return errRateLimited
		}

		return c.Next()
	}
}

// RequestLogger logs one line per request after the error handler has
// written the response.
func (s *Server) RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			if werr := writeError(c, s.logger, err); werr != nil {
				return werr
			}
		}

		s.logger.Info("Request handled",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start))
		return nil
	}
}

func claimsFrom(c *fiber.Ctx) *identity.Claims {
	claims, _ := c.Locals(ClaimsContextKey).(*identity.Claims)
	return claims
}

func userFrom(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(UserContextKey).(*models.User)
	return user
}

func actorFrom(c *fiber.Ctx) store.Actor {
	actor := store.Actor{IsAdmin: identity.HasRole(claimsFrom(c), models.RoleAdmin)}
	if user := userFrom(c); user != nil {
		actor.UserID = user.ID
	}
	return actor
}
