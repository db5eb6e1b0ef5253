package client

import (
	"context"
	"sync"

	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

// listState is the shared loading bookkeeping of the list stores. Each
// refresh takes a sequence number so a slow response cannot overwrite a
// newer one.
type listState struct {
	mu      sync.Mutex
	seq     uint64
	loading bool
	err     error
}

func (s *listState) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.loading = true
	s.err = nil
	return s.seq
}

// finish reports whether seq is still the latest refresh; the caller then
// applies its result while holding s.mu.
func (s *listState) finish(seq uint64, err error) bool {
	if seq != s.seq {
		return false
	}
	s.loading = false
	s.err = err
	return true
}

type ProductListState struct {
	Products   []models.Product
	Pagination store.Pagination
	Query      ProductQuery
	Loading    bool
	Err        error
}

// ProductListStore holds the last fetched product page. Admin stores list
// through the admin endpoint and see deactivated products.
type ProductListStore struct {
	client *Client
	admin  bool
	state  listState
	page   store.ProductPage
	query  ProductQuery
}

func NewProductListStore(c *Client, admin bool) *ProductListStore {
	return &ProductListStore{client: c, admin: admin}
}

func (s *ProductListStore) Refresh(ctx context.Context, q ProductQuery) error {
	seq := s.state.begin()

	list := s.client.ListProducts
	if s.admin {
		list = s.client.AdminListProducts
	}
	page, err := list(ctx, q)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.finish(seq, err) && err == nil {
		s.page = *page
		s.query = q
	}
	return err
}

// Toggle flips a product's active state and updates it in place.
func (s *ProductListStore) Toggle(ctx context.Context, id int64) error {
	product, err := s.client.ToggleProduct(ctx, id)
	if err != nil {
		return err
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for i := range s.page.Products {
		if s.page.Products[i].ID == id {
			s.page.Products[i] = *product
		}
	}
	return nil
}

func (s *ProductListStore) Snapshot() ProductListState {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	return ProductListState{
		Products:   append([]models.Product(nil), s.page.Products...),
		Pagination: s.page.Pagination,
		Query:      s.query,
		Loading:    s.state.loading,
		Err:        s.state.err,
	}
}

type OrderListState struct {
	Orders  []models.Order
	HasMore bool
	Loading bool
	Err     error
}

// OrderListStore holds the signed-in user's order history, newest first,
// paged by cursor.
type OrderListStore struct {
	client *Client
	limit  int
	state  listState
	orders []models.Order
	cursor string
	more   bool
}

func NewOrderListStore(c *Client, limit int) *OrderListStore {
	return &OrderListStore{client: c, limit: limit}
}

// Refresh reloads the first page and drops anything loaded before.
func (s *OrderListStore) Refresh(ctx context.Context) error {
	return s.load(ctx, "", false)
}

// LoadMore appends the next page. It is a no-op when nothing is left.
func (s *OrderListStore) LoadMore(ctx context.Context) error {
	s.state.mu.Lock()
	cursor, more := s.cursor, s.more
	s.state.mu.Unlock()

	if !more {
		return nil
	}
	return s.load(ctx, cursor, true)
}

func (s *OrderListStore) load(ctx context.Context, cursor string, appendPage bool) error {
	seq := s.state.begin()
	page, err := s.client.ListMyOrders(ctx, cursor, s.limit)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if !s.state.finish(seq, err) || err != nil {
		return err
	}

	if appendPage {
		s.orders = append(s.orders, page.Items...)
	} else {
		s.orders = page.Items
	}
	s.cursor, s.more = page.NextCursor, page.HasMore
	return nil
}

// Cancel cancels one of the user's orders and replaces it in the list.
func (s *OrderListStore) Cancel(ctx context.Context, id int64) error {
	order, err := s.client.CancelMyOrder(ctx, id)
	if err != nil {
		return err
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i] = *order
		}
	}
	return nil
}

func (s *OrderListStore) Snapshot() OrderListState {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	return OrderListState{
		Orders:  append([]models.Order(nil), s.orders...),
		HasMore: s.more,
		Loading: s.state.loading,
		Err:     s.state.err,
	}
}

type UserListState struct {
	Users      []models.User
	Pagination store.Pagination
	Loading    bool
	Err        error
}

// UserListStore is the admin's user table.
type UserListStore struct {
	client *Client
	state  listState
	page   store.UserPage
}

func NewUserListStore(c *Client) *UserListStore {
	return &UserListStore{client: c}
}

func (s *UserListStore) Refresh(ctx context.Context, page, limit int) error {
	seq := s.state.begin()
	result, err := s.client.ListUsers(ctx, page, limit)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.finish(seq, err) && err == nil {
		s.page = *result
	}
	return err
}

// Toggle blocks or unblocks a user and updates the row in place.
func (s *UserListStore) Toggle(ctx context.Context, id int64) error {
	user, err := s.client.ToggleUser(ctx, id)
	if err != nil {
		return err
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for i := range s.page.Users {
		if s.page.Users[i].ID == id {
			s.page.Users[i] = *user
		}
	}
	return nil
}

func (s *UserListStore) Snapshot() UserListState {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	return UserListState{
		Users:      append([]models.User(nil), s.page.Users...),
		Pagination: s.page.Pagination,
		Loading:    s.state.loading,
		Err:        s.state.err,
	}
}
