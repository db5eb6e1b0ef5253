package api

import (
	"context"

	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

// Store is the persistence surface the handlers use; *store.Store
// implements it.
type Store interface {
	Ping(ctx context.Context) error

	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	CreateCategory(ctx context.Context, name string) (*models.Category, error)

	ListProducts(ctx context.Context, filter store.ProductFilter, page store.PageRequest) (*store.ProductPage, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetActiveProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, in store.ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch store.ProductPatch) (*models.Product, error)
	ToggleProductActive(ctx context.Context, id int64) (*models.Product, error)

	CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error)
	GetOrderFor(ctx context.Context, id int64, actor store.Actor) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage[models.Order], error)
	ListOrders(ctx context.Context, filter store.OrderFilter) ([]models.Order, error)
	CancelOrder(ctx context.Context, id int64, actor store.Actor) (*models.Order, error)
	SetOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error)
	AttachPaymentSlip(ctx context.Context, orderID, userID int64, slipURL string) (*models.Order, error)

	SyncUser(ctx context.Context, req store.SyncUserRequest) (*models.User, error)
	ListUsers(ctx context.Context, page store.PageRequest) (*store.UserPage, error)
	ToggleUserActive(ctx context.Context, id, actingUserID int64) (*models.User, error)

	DashboardStats(ctx context.Context) (*store.DashboardStats, error)
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Claims, error)
}

// OrderNotifier is told about committed order changes.
type OrderNotifier interface {
	OrderPlaced(ctx context.Context, order *models.Order)
	StatusChanged(ctx context.Context, order *models.Order)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items"`
	TotalPrice      int64              `json:"totalPrice"`
	ShippingAddress string             `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
}

type OrderItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	Price     int64 `json:"price"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
}
