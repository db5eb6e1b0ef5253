package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/ratelimit"
	"github.com/safar/storefront/internal/store"
)

type testEnv struct {
	app      *fiber.App
	store    *fakeStore
	uploader *fakeUploader
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, fs *fakeStore, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	if fs == nil {
		fs = &fakeStore{}
	}
	env := &testEnv{
		store:    fs,
		uploader: &fakeUploader{},
		notifier: &recordingNotifier{},
	}
	env.app = NewApp(Deps{
		Store:         fs,
		Verifier:      fakeVerifier{},
		Uploader:      env.uploader,
		Limiter:       limiter,
		Notifier:      env.notifier,
		Logger:        discardLogger(),
		ProductFolder: "products",
		SlipFolder:    "slips",
	})
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func jsonRequest(method, target, token string, payload any) *http.Request {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func multipartRequest(t *testing.T, method, target, token string, fields map[string]string, fileField, fileName string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return resp
}

func TestAuthentication(t *testing.T) {
	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"missing authorization header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"bearer without token", "Bearer", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"expired token", "Bearer expired", http.StatusUnauthorized},
		{"valid token", "Bearer " + userToken, http.StatusOK},
		{"lowercase scheme", "bearer " + userToken, http.StatusOK},
	}

	env := newTestEnv(t, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, body := env.do(t, req)
			if resp.StatusCode != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, resp.StatusCode, body)
			}
			if tt.expectedStatus == http.StatusUnauthorized {
				if got := decodeError(t, body).Error; got != "unauthorized" {
					t.Errorf("expected error code unauthorized, got %q", got)
				}
			}
		})
	}
}

func TestMeReturnsSyncedUser(t *testing.T) {
	var synced store.SyncUserRequest
	env := newTestEnv(t, &fakeStore{
		syncUser: func(req store.SyncUserRequest) (*models.User, error) {
			synced = req
			return &models.User{ID: 7, ExternalAuthID: req.ExternalID, Email: req.Email, Role: req.Role}, nil
		},
	}, nil)

	resp, body := env.do(t, jsonRequest(http.MethodGet, "/me", adminToken, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	if synced.ExternalID != "auth0|admin" || synced.Email != "admin@example.com" || synced.Role != models.RoleAdmin {
		t.Errorf("unexpected sync request: %+v", synced)
	}

	var user models.User
	if err := json.Unmarshal(body, &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.ID != 7 || !user.Lifecycle.IsActive() {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestBlockedUserIsForbidden(t *testing.T) {
	env := newTestEnv(t, &fakeStore{
		syncUser: func(store.SyncUserRequest) (*models.User, error) {
			return nil, database.ErrUserBlocked
		},
	}, nil)

	resp, body := env.do(t, jsonRequest(http.MethodGet, "/user/orders", userToken, nil))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", resp.StatusCode, body)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t, &fakeStore{
		dashboardStats: func() (*store.DashboardStats, error) {
			return &store.DashboardStats{TotalOrders: 3}, nil
		},
	}, nil)

	resp, body := env.do(t, jsonRequest(http.MethodGet, "/admin/stats", userToken, nil))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for user token, got %d: %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, jsonRequest(http.MethodGet, "/admin/stats", adminToken, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin token, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"totalOrders":3`) {
		t.Errorf("unexpected stats body: %s", body)
	}
}

func TestPublicProductListing(t *testing.T) {
	var gotFilter store.ProductFilter
	var gotPage store.PageRequest
	env := newTestEnv(t, &fakeStore{
		listProducts: func(filter store.ProductFilter, page store.PageRequest) (*store.ProductPage, error) {
			gotFilter, gotPage = filter, page
			return &store.ProductPage{Products: []models.Product{}}, nil
		},
	}, nil)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet,
		"/products?search=mug&category=Kitchen&min=100&max=500.9&page=0&limit=500", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	if gotFilter.Status != store.ProductStatusActive {
		t.Errorf("public listing must be restricted to active products, got %q", gotFilter.Status)
	}
	if gotFilter.Search != "mug" || gotFilter.CategoryName != "Kitchen" {
		t.Errorf("unexpected filter: %+v", gotFilter)
	}
	if gotFilter.MinPrice == nil || *gotFilter.MinPrice != 100 {
		t.Errorf("expected min price 100, got %v", gotFilter.MinPrice)
	}
	if gotFilter.MaxPrice == nil || *gotFilter.MaxPrice != 500 {
		t.Errorf("expected max price 500, got %v", gotFilter.MaxPrice)
	}
	if gotPage.Page != 1 || gotPage.Limit != store.MaxPageLimit {
		t.Errorf("expected clamped page {1 %d}, got %+v", store.MaxPageLimit, gotPage)
	}
}

func TestProductListingRejectsBadBounds(t *testing.T) {
	env := newTestEnv(t, &fakeStore{}, nil)

	for _, query := range []string{"min=abc", "max=-5", "categoryId=x"} {
		resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/products?"+query, nil))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", query, resp.StatusCode, body)
		}
	}
}

func TestGetInactiveProductIsNotFound(t *testing.T) {
	env := newTestEnv(t, &fakeStore{
		getActiveProduct: func(int64) (*models.Product, error) {
			return nil, database.ErrProductNotFound
		},
	}, nil)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/products/12", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, body)
	}
	if got := decodeError(t, body).Error; got != "not_found" {
		t.Errorf("expected not_found, got %q", got)
	}

	resp, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/products/abc", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", resp.StatusCode)
	}
}

func TestCreateProductUploadsImage(t *testing.T) {
	var got store.ProductInput
	env := newTestEnv(t, &fakeStore{
		createProduct: func(in store.ProductInput) (*models.Product, error) {
			got = in
			return &models.Product{ID: 5, Name: in.Name, Price: in.Price, ImageURL: in.ImageURL}, nil
		},
	}, nil)

	req := multipartRequest(t, http.MethodPost, "/admin/products", adminToken, map[string]string{
		"name":        "Mug",
		"description": "Stoneware",
		"price":       "1290.50",
		"stock":       "4",
		"categoryId":  "2",
	}, "image", "mug.png")

	resp, body := env.do(t, req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	if got.Price != 1290 || got.Stock != 4 || got.CategoryID != 2 {
		t.Errorf("unexpected coerced input: %+v", got)
	}
	if got.ImageURL != "https://media.example.com/products/mug.png" {
		t.Errorf("unexpected image url %q", got.ImageURL)
	}
	if env.uploader.calls() != 1 {
		t.Errorf("expected one upload, got %d", env.uploader.calls())
	}
}

func TestCreateProductRejectsNonImage(t *testing.T) {
	env := newTestEnv(t, &fakeStore{}, nil)

	req := multipartRequest(t, http.MethodPost, "/admin/products", adminToken, map[string]string{
		"name": "Mug", "price": "10", "stock": "1", "categoryId": "2",
	}, "image", "mug.exe")

	resp, body := env.do(t, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	if env.uploader.calls() != 0 {
		t.Errorf("rejected file must not be uploaded")
	}
}

func TestCreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		payload        any
		storeErr       error
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "created",
			payload: CreateOrderRequest{
				Items:      []OrderItemRequest{{ProductID: 1, Quantity: 2, Price: 100}},
				TotalPrice: 200,
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "out of stock",
			payload: CreateOrderRequest{
				Items:      []OrderItemRequest{{ProductID: 1, Quantity: 9, Price: 100}},
				TotalPrice: 900,
			},
			storeErr: &database.OutOfStockError{
				ProductID: 1, ProductName: "Mug", Requested: 9, Available: 2,
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "out_of_stock",
		},
		{
			name:           "validation",
			payload:        CreateOrderRequest{},
			storeErr:       database.NewValidationError("items", "must not be empty"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation_error",
		},
		{
			name:           "internal error hidden",
			payload:        CreateOrderRequest{Items: []OrderItemRequest{{ProductID: 1, Quantity: 1}}},
			storeErr:       errBoom,
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got store.CreateOrderRequest
			env := newTestEnv(t, &fakeStore{
				createOrder: func(req store.CreateOrderRequest) (*models.Order, error) {
					got = req
					if tt.storeErr != nil {
						return nil, tt.storeErr
					}
					return pendingOrder(42, req.UserID), nil
				},
			}, nil)

			resp, body := env.do(t, jsonRequest(http.MethodPost, "/user/order", userToken, tt.payload))
			if resp.StatusCode != tt.expectedStatus {
				t.Fatalf("expected %d, got %d: %s", tt.expectedStatus, resp.StatusCode, body)
			}
			if got.UserID != 1 {
				t.Errorf("order must be placed for the synced user, got user %d", got.UserID)
			}

			if tt.expectedCode == "" {
				if len(env.notifier.placed) != 1 || env.notifier.placed[0] != 42 {
					t.Errorf("expected order 42 to be announced, got %v", env.notifier.placed)
				}
				return
			}

			errResp := decodeError(t, body)
			if errResp.Error != tt.expectedCode {
				t.Errorf("expected code %q, got %q", tt.expectedCode, errResp.Error)
			}
			if tt.expectedStatus == http.StatusInternalServerError && strings.Contains(errResp.Message, errBoom.Error()) {
				t.Errorf("internal error detail leaked: %q", errResp.Message)
			}
			if len(env.notifier.placed) != 0 {
				t.Errorf("failed order must not be announced")
			}
		})
	}
}

func TestCreateOrderRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, &fakeStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/user/order", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+userToken)

	resp, body := env.do(t, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
}

func TestOrderRateLimit(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		env := newTestEnv(t, &fakeStore{}, fakeLimiter{result: &ratelimit.Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: 1500 * time.Millisecond,
		}})

		resp, body := env.do(t, jsonRequest(http.MethodPost, "/user/order", userToken, CreateOrderRequest{}))
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d: %s", resp.StatusCode, body)
		}
		if got := resp.Header.Get("Retry-After"); got != "2" {
			t.Errorf("expected Retry-After 2, got %q", got)
		}
	})

	t.Run("limiter failure lets the order through", func(t *testing.T) {
		env := newTestEnv(t, &fakeStore{
			createOrder: func(req store.CreateOrderRequest) (*models.Order, error) {
				return pendingOrder(1, req.UserID), nil
			},
		}, fakeLimiter{err: errBoom})

		resp, body := env.do(t, jsonRequest(http.MethodPost, "/user/order", userToken, CreateOrderRequest{}))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
		}
	})
}

func TestCancelOrder(t *testing.T) {
	var gotActor store.Actor
	fs := &fakeStore{
		cancelOrder: func(id int64, actor store.Actor) (*models.Order, error) {
			gotActor = actor
			if id == 2 {
				return nil, &database.InvalidTransitionError{OrderID: 2, From: "CANCELLED", To: "CANCELLED"}
			}
			order := pendingOrder(id, 1)
			order.Status = models.OrderStatusCancelled
			return order, nil
		},
	}
	env := newTestEnv(t, fs, nil)

	resp, body := env.do(t, jsonRequest(http.MethodPatch, "/user/orders/1/cancel", adminToken, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if gotActor.IsAdmin {
		t.Errorf("user route must cancel as owner, got %+v", gotActor)
	}

	resp, body = env.do(t, jsonRequest(http.MethodPatch, "/admin/orders/1/cancel", adminToken, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if !gotActor.IsAdmin || gotActor.UserID != 99 {
		t.Errorf("admin route must cancel as admin, got %+v", gotActor)
	}

	resp, body = env.do(t, jsonRequest(http.MethodPatch, "/user/orders/2/cancel", userToken, nil))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, body)
	}
	if got := decodeError(t, body).Error; got != "invalid_state_transition" {
		t.Errorf("expected invalid_state_transition, got %q", got)
	}

	if len(env.notifier.changed) != 2 {
		t.Errorf("expected two status events, got %v", env.notifier.changed)
	}
}

func TestSetOrderStatus(t *testing.T) {
	var gotStatus models.OrderStatus
	env := newTestEnv(t, &fakeStore{
		setOrderStatus: func(id int64, status models.OrderStatus) (*models.Order, error) {
			gotStatus = status
			order := pendingOrder(id, 1)
			order.Status = status
			return order, nil
		},
	}, nil)

	resp, body := env.do(t, jsonRequest(http.MethodPatch, "/admin/orders/3/status", adminToken, UpdateStatusRequest{Status: "paid"}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if gotStatus != models.OrderStatusPaid {
		t.Errorf("expected PAID, got %q", gotStatus)
	}

	resp, body = env.do(t, jsonRequest(http.MethodPatch, "/admin/orders/3/status", adminToken, UpdateStatusRequest{Status: "REFUNDED"}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d: %s", resp.StatusCode, body)
	}
}

func TestUploadSlip(t *testing.T) {
	t.Run("attaches slip to pending order", func(t *testing.T) {
		var gotURL string
		env := newTestEnv(t, &fakeStore{
			getOrderFor: func(id int64, actor store.Actor) (*models.Order, error) {
				return pendingOrder(id, actor.UserID), nil
			},
			attachPaymentSlip: func(orderID, userID int64, url string) (*models.Order, error) {
				gotURL = url
				order := pendingOrder(orderID, userID)
				order.SlipURL = &url
				return order, nil
			},
		}, nil)

		req := multipartRequest(t, http.MethodPatch, "/order/8/upload-slip", userToken, nil, "slip", "slip.jpg")
		resp, body := env.do(t, req)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
		}
		if gotURL != "https://media.example.com/slips/slip.jpg" {
			t.Errorf("unexpected slip url %q", gotURL)
		}
	})

	t.Run("refuses non-pending order before uploading", func(t *testing.T) {
		env := newTestEnv(t, &fakeStore{
			getOrderFor: func(id int64, actor store.Actor) (*models.Order, error) {
				order := pendingOrder(id, actor.UserID)
				order.Status = models.OrderStatusShipped
				return order, nil
			},
		}, nil)

		req := multipartRequest(t, http.MethodPatch, "/order/8/upload-slip", userToken, nil, "slip", "slip.jpg")
		resp, body := env.do(t, req)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", resp.StatusCode, body)
		}
		if env.uploader.calls() != 0 {
			t.Errorf("slip must not be uploaded for a shipped order")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t, &fakeStore{
			getOrderFor: func(id int64, actor store.Actor) (*models.Order, error) {
				return pendingOrder(id, actor.UserID), nil
			},
		}, nil)

		req := multipartRequest(t, http.MethodPatch, "/order/8/upload-slip", userToken, map[string]string{"note": "x"}, "", "")
		resp, body := env.do(t, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
		}
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeStore{ping: func() error { return errBoom }}, nil)

	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the database is down, got %d", resp.StatusCode)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
