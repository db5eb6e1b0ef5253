package store

import (
	"context"
	"database/sql"

	"github.com/safar/storefront/internal/models"
)

// Store binds the package functions to one connection pool so HTTP handlers
// can depend on small interfaces instead of *sql.DB.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	return ListCategories(ctx, s.db)
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return GetCategory(ctx, s.db, id)
}

func (s *Store) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	return CreateCategory(ctx, s.db, name)
}

func (s *Store) ListProducts(ctx context.Context, filter ProductFilter, page PageRequest) (*ProductPage, error) {
	return ListProducts(ctx, s.db, filter, page)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return GetProduct(ctx, s.db, id)
}

func (s *Store) GetActiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	return GetActiveProduct(ctx, s.db, id)
}

func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	return CreateProduct(ctx, s.db, in)
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (*models.Product, error) {
	return UpdateProduct(ctx, s.db, id, patch)
}

func (s *Store) ToggleProductActive(ctx context.Context, id int64) (*models.Product, error) {
	return ToggleProductActive(ctx, s.db, id)
}

func (s *Store) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	return CreateOrder(ctx, s.db, req)
}

func (s *Store) GetOrderFor(ctx context.Context, id int64, actor Actor) (*models.Order, error) {
	return GetOrderFor(ctx, s.db, id, actor)
}

func (s *Store) ListUserOrders(ctx context.Context, userID int64, cursor string, limit int) (*CursorPage[models.Order], error) {
	return ListUserOrders(ctx, s.db, userID, cursor, limit)
}

func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	return ListOrders(ctx, s.db, filter)
}

func (s *Store) CancelOrder(ctx context.Context, id int64, actor Actor) (*models.Order, error) {
	return CancelOrder(ctx, s.db, id, actor)
}

func (s *Store) SetOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	return SetOrderStatus(ctx, s.db, id, status)
}

func (s *Store) AttachPaymentSlip(ctx context.Context, orderID, userID int64, slipURL string) (*models.Order, error) {
	return AttachPaymentSlip(ctx, s.db, orderID, userID, slipURL)
}

func (s *Store) SyncUser(ctx context.Context, req SyncUserRequest) (*models.User, error) {
	return SyncUser(ctx, s.db, req)
}

func (s *Store) ListUsers(ctx context.Context, page PageRequest) (*UserPage, error) {
	return ListUsers(ctx, s.db, page)
}

func (s *Store) ToggleUserActive(ctx context.Context, id, actingUserID int64) (*models.User, error) {
	return ToggleUserActive(ctx, s.db, id, actingUserID)
}

func (s *Store) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	return GetDashboardStats(ctx, s.db)
}
