// Package api exposes the storefront over HTTP with fiber.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/storefront/internal/media"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/ratelimit"
)

// Deps are the collaborators the HTTP layer needs. Uploader, Limiter,
// Notifier and Logger fall back to inert implementations when nil.
type Deps struct {
	Store         Store
	Verifier      TokenVerifier
	Uploader      media.Uploader
	Limiter       ratelimit.Limiter
	Notifier      OrderNotifier
	Logger        *slog.Logger
	ProductFolder string
	SlipFolder    string
	BodyLimit     int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

type Server struct {
	store         Store
	verifier      TokenVerifier
	uploader      media.Uploader
	limiter       ratelimit.Limiter
	notifier      OrderNotifier
	logger        *slog.Logger
	productFolder string
	slipFolder    string
}

func NewServer(deps Deps) *Server {
	s := &Server{
		store:         deps.Store,
		verifier:      deps.Verifier,
		uploader:      deps.Uploader,
		limiter:       deps.Limiter,
		notifier:      deps.Notifier,
		logger:        deps.Logger,
		productFolder: deps.ProductFolder,
		slipFolder:    deps.SlipFolder,
	}
	if s.uploader == nil {
		s.uploader = media.Disabled{}
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Unlimited{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// NewApp builds the fiber application with every route registered.
func NewApp(deps Deps) *fiber.App {
	s := NewServer(deps)

	bodyLimit := deps.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 10 * 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		AppName:               "storefront",
		BodyLimit:             bodyLimit,
		ReadTimeout:           deps.ReadTimeout,
		WriteTimeout:          deps.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return writeError(c, s.logger, err)
		},
	})

	s.Routes(app)
	return app
}

func (s *Server) Routes(app *fiber.App) {
	app.Use(s.RequestLogger())

	app.Get("/health", s.Health)
	app.Get("/categories", s.ListCategories)
	app.Get("/categories/:id", s.GetCategory)
	app.Get("/products", s.ListProducts)
	app.Get("/products/:id", s.GetProduct)

	auth, user := s.Authenticate(), s.RequireUser()
	app.Get("/me", auth, user, s.Me)
	app.Post("/user/order", auth, user, s.OrderRateLimit(), s.CreateOrder)
	app.Get("/user/orders", auth, user, s.ListMyOrders)
	app.Get("/user/orders/:id", auth, user, s.GetMyOrder)
	app.Patch("/user/orders/:id/cancel", auth, user, s.CancelMyOrder)
	app.Patch("/order/:id/upload-slip", auth, user, s.UploadSlip)

	admin := app.Group("/admin", auth, user, s.RequireAdmin())
	admin.Get("/stats", s.Stats)
	admin.Get("/products", s.AdminListProducts)
	admin.Get("/products/:id", s.AdminGetProduct)
	admin.Post("/products", s.CreateProduct)
	admin.Put("/products/:id", s.UpdateProduct)
	admin.Patch("/products/:id/status", s.ToggleProduct)
	admin.Post("/categories", s.CreateCategory)
	admin.Get("/orders", s.ListOrders)
	admin.Get("/orders/:id", s.AdminGetOrder)
	admin.Patch("/orders/:id/status", s.SetOrderStatus)
	admin.Patch("/orders/:id/cancel", s.AdminCancelOrder)
	admin.Get("/users", s.ListUsers)
	admin.Patch("/user/:id", s.ToggleUser)
}

func (s *Server) Health(c *fiber.Ctx) error {
	if err := s.store.Ping(c.UserContext()); err != nil {
		s.logger.Warn("Health check failed", "err", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type nopNotifier struct{}

func (nopNotifier) OrderPlaced(context.Context, *models.Order)   {}
func (nopNotifier) StatusChanged(context.Context, *models.Order) {}
