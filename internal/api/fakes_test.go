package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/media"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/ratelimit"
	"github.com/safar/storefront/internal/store"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
)

// fakeStore implements Store. Methods without a func set fall through to the
// embedded nil interface and panic, so each test wires exactly what it uses.
type fakeStore struct {
	Store

	syncUser          func(store.SyncUserRequest) (*models.User, error)
	listProducts      func(store.ProductFilter, store.PageRequest) (*store.ProductPage, error)
	getActiveProduct  func(int64) (*models.Product, error)
	createProduct     func(store.ProductInput) (*models.Product, error)
	createOrder       func(store.CreateOrderRequest) (*models.Order, error)
	getOrderFor       func(int64, store.Actor) (*models.Order, error)
	cancelOrder       func(int64, store.Actor) (*models.Order, error)
	setOrderStatus    func(int64, models.OrderStatus) (*models.Order, error)
	attachPaymentSlip func(int64, int64, string) (*models.Order, error)
	dashboardStats    func() (*store.DashboardStats, error)
	ping              func() error
}

func (f *fakeStore) Ping(context.Context) error {
	if f.ping != nil {
		return f.ping()
	}
	return nil
}

func (f *fakeStore) SyncUser(_ context.Context, req store.SyncUserRequest) (*models.User, error) {
	if f.syncUser != nil {
		return f.syncUser(req)
	}
	id := int64(1)
	if req.Role == models.RoleAdmin {
		id = 99
	}
	return &models.User{ID: id, ExternalAuthID: req.ExternalID, Email: req.Email, Role: req.Role}, nil
}

func (f *fakeStore) ListProducts(_ context.Context, filter store.ProductFilter, page store.PageRequest) (*store.ProductPage, error) {
	return f.listProducts(filter, page)
}

func (f *fakeStore) GetActiveProduct(_ context.Context, id int64) (*models.Product, error) {
	return f.getActiveProduct(id)
}

func (f *fakeStore) CreateProduct(_ context.Context, in store.ProductInput) (*models.Product, error) {
	return f.createProduct(in)
}

func (f *fakeStore) CreateOrder(_ context.Context, req store.CreateOrderRequest) (*models.Order, error) {
	return f.createOrder(req)
}

func (f *fakeStore) GetOrderFor(_ context.Context, id int64, actor store.Actor) (*models.Order, error) {
	return f.getOrderFor(id, actor)
}

func (f *fakeStore) CancelOrder(_ context.Context, id int64, actor store.Actor) (*models.Order, error) {
	return f.cancelOrder(id, actor)
}

func (f *fakeStore) SetOrderStatus(_ context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	return f.setOrderStatus(id, status)
}

func (f *fakeStore) AttachPaymentSlip(_ context.Context, orderID, userID int64, url string) (*models.Order, error) {
	return f.attachPaymentSlip(orderID, userID, url)
}

func (f *fakeStore) DashboardStats(context.Context) (*store.DashboardStats, error) {
	return f.dashboardStats()
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*identity.Claims, error) {
	switch token {
	case userToken:
		return &identity.Claims{Subject: "auth0|user", Email: "user@example.com"}, nil
	case adminToken:
		return &identity.Claims{Subject: "auth0|admin", Email: "admin@example.com", Roles: []string{"ADMIN"}}, nil
	case "expired":
		return nil, identity.ErrExpiredToken
	}
	return nil, identity.ErrInvalidToken
}

type fakeUploader struct {
	mu      sync.Mutex
	folders []string
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, folder string, file media.File) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	if _, err := io.ReadAll(file.Body); err != nil {
		return "", err
	}
	u.folders = append(u.folders, folder)
	return "https://media.example.com/" + folder + "/" + file.Name, nil
}

func (u *fakeUploader) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.folders)
}

type fakeLimiter struct {
	result *ratelimit.Result
	err    error
}

func (l fakeLimiter) Allow(context.Context, string) (*ratelimit.Result, error) {
	return l.result, l.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	placed  []int64
	changed []models.OrderStatus
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, order *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed = append(n.placed, order.ID)
}

func (n *recordingNotifier) StatusChanged(_ context.Context, order *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, order.Status)
}

var errBoom = errors.New("connection reset by peer")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pendingOrder(id, userID int64) *models.Order {
	now := time.Now()
	return &models.Order{
		ID:         id,
		UserID:     userID,
		TotalPrice: 200,
		Status:     models.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
