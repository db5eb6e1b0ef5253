// Package client is the storefront's consumer side: a typed HTTP client for
// the JSON API and the application-state containers (cart, product, order
// and user lists) a front end keeps in memory.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/safar/storefront/internal/api"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same token. The empty token sends no
// Authorization header.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given error code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProductQuery mirrors the product listing query string. Zero values are
// omitted.
type ProductQuery struct {
	Search     string
	Category   string
	CategoryID int64
	MinPrice   *int64
	MaxPrice   *int64
	Status     store.ProductStatus
	Page       int
	Limit      int
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.CategoryID > 0 {
		v.Set("categoryId", strconv.FormatInt(q.CategoryID, 10))
	}
	if q.MinPrice != nil {
		v.Set("min", strconv.FormatInt(*q.MinPrice, 10))
	}
	if q.MaxPrice != nil {
		v.Set("max", strconv.FormatInt(*q.MaxPrice, 10))
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &out)
	return out, err
}

func (c *Client) ListProducts(ctx context.Context, q ProductQuery) (*store.ProductPage, error) {
	var out store.ProductPage
	if err := c.do(ctx, http.MethodGet, "/products", q.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminListProducts includes deactivated products.
func (c *Client) AdminListProducts(ctx context.Context, q ProductQuery) (*store.ProductPage, error) {
	var out store.ProductPage
	if err := c.do(ctx, http.MethodGet, "/admin/products", q.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ToggleProduct(ctx context.Context, id int64) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/admin/products/%d/status", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req api.CreateOrderRequest) (*models.Order, error) {
	var out models.Order
	if err := c.do(ctx, http.MethodPost, "/user/order", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListMyOrders(ctx context.Context, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	v := url.Values{}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}

	var out store.CursorPage[models.Order]
	if err := c.do(ctx, http.MethodGet, "/user/orders", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelMyOrder(ctx context.Context, id int64) (*models.Order, error) {
	var out models.Order
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/user/orders/%d/cancel", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListOrders(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	v := url.Values{}
	if status != "" {
		v.Set("status", string(status))
	}

	var out []models.Order
	err := c.do(ctx, http.MethodGet, "/admin/orders", v, nil, &out)
	return out, err
}

func (c *Client) SetOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	var out models.Order
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/admin/orders/%d/status", id), nil,
		api.UpdateStatusRequest{Status: string(status)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListUsers(ctx context.Context, page, limit int) (*store.UserPage, error) {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(limit))

	var out store.UserPage
	if err := c.do(ctx, http.MethodGet, "/admin/users", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ToggleUser(ctx context.Context, id int64) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/admin/user/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Code, apiErr.Message = errBody.Error, errBody.Message
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
