package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/safar/storefront/internal/api"
	"github.com/safar/storefront/internal/models"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrUnavailable     = errors.New("product is not available")
)

// CartItem snapshots the product fields the cart needs. Stock is the last
// known stock and caps Quantity.
type CartItem struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"imageUrl"`
	Stock     int    `json:"stock"`
	Quantity  int    `json:"quantity"`
}

func (i CartItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Persister stores the cart between sessions.
type Persister interface {
	Load() ([]CartItem, error)
	Save(items []CartItem) error
}

// FilePersister keeps the cart as a JSON document on disk.
type FilePersister struct {
	Path string
}

// Load returns an empty cart when the file does not exist yet.
func (p FilePersister) Load() ([]CartItem, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cart: %w", err)
	}

	var items []CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return items, nil
}

// Save replaces the file atomically.
func (p FilePersister) Save(items []CartItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.Path), ".cart-*")
	if err != nil {
		return fmt.Errorf("create temp cart: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cart: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cart: %w", err)
	}
	return os.Rename(tmp.Name(), p.Path)
}

type memoryPersister struct{}

func (memoryPersister) Load() ([]CartItem, error) { return nil, nil }
func (memoryPersister) Save([]CartItem) error     { return nil }

// CartStore is the shopping cart. Every mutation is persisted before it
// returns; a persistence failure is returned but the in-memory change stays.
type CartStore struct {
	mu        sync.Mutex
	items     []CartItem
	persister Persister
	logger    *slog.Logger
}

// NewCartStore restores the cart from p. A nil persister keeps the cart in
// memory only.
func NewCartStore(p Persister, logger *slog.Logger) (*CartStore, error) {
	if p == nil {
		p = memoryPersister{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	items, err := p.Load()
	if err != nil {
		return nil, err
	}

	restored := items[:0]
	for _, item := range items {
		if item.ProductID > 0 && item.Quantity > 0 {
			restored = append(restored, item)
		}
	}

	return &CartStore{items: restored, persister: p, logger: logger}, nil
}

// Add puts quantity units of product in the cart, merging with an existing
// line. The line is capped at the product's stock.
func (c *CartStore) Add(product models.Product, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !product.Lifecycle.IsActive() || product.Stock <= 0 {
		return ErrUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(product.ID)
	if i < 0 {
		c.items = append(c.items, CartItem{ProductID: product.ID})
		i = len(c.items) - 1
	}

	item := &c.items[i]
	item.Name = product.Name
	item.Price = product.Price
	item.ImageURL = product.ImageURL
	item.Stock = product.Stock
	item.Quantity = min(item.Quantity+quantity, product.Stock)

	return c.persist()
}

// SetQuantity overwrites a line's quantity. Zero or less removes the line.
func (c *CartStore) SetQuantity(productID int64, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(productID)
	if i < 0 {
		return nil
	}
	if quantity <= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	} else {
		c.items[i].Quantity = min(quantity, c.items[i].Stock)
	}

	return c.persist()
}

func (c *CartStore) Remove(productID int64) error {
	return c.SetQuantity(productID, 0)
}

func (c *CartStore) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	return c.persist()
}

func (c *CartStore) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]CartItem(nil), c.items...)
}

// Count is the number of units across all lines.
func (c *CartStore) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

func (c *CartStore) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, item := range c.items {
		total += item.Subtotal()
	}
	return total
}

// OrderRequest builds the order body for the current contents.
func (c *CartStore) OrderRequest(shippingAddress string, method models.PaymentMethod) api.CreateOrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := api.CreateOrderRequest{
		Items:           make([]api.OrderItemRequest, 0, len(c.items)),
		ShippingAddress: shippingAddress,
		PaymentMethod:   string(method),
	}
	for _, item := range c.items {
		req.Items = append(req.Items, api.OrderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
		req.TotalPrice += item.Subtotal()
	}
	return req
}

func (c *CartStore) indexOf(productID int64) int {
	for i, item := range c.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *CartStore) persist() error {
	if err := c.persister.Save(c.items); err != nil {
		c.logger.Warn("Cart not persisted", "err", err)
		return err
	}
	return nil
}
