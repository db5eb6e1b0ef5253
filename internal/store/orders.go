package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

type CreateOrderRequest struct {
	UserID          int64
	Items           []OrderItemRequest
	TotalPrice      int64
	ShippingAddress string
	PaymentMethod   models.PaymentMethod
}

// OrderItemRequest is one cart line. Price is the unit price the customer saw
// and is stored as the line's price snapshot.
type OrderItemRequest struct {
	ProductID int64
	Quantity  int
	Price     int64
}

// Actor is the principal performing an order operation.
type Actor struct {
	UserID  int64
	IsAdmin bool
}

func (r *CreateOrderRequest) validate() error {
	if len(r.Items) == 0 {
		return database.NewValidationError("items", "must not be empty")
	}

	var sum int64
	for i, item := range r.Items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case item.ProductID <= 0:
			return database.NewValidationError(field+".productId", "is required")
		case item.Quantity <= 0:
			return database.NewValidationError(field+".quantity", "must be greater than zero")
		case item.Price < 0:
			return database.NewValidationError(field+".price", "must not be negative")
		case item.Price > (maxAmount-sum)/int64(item.Quantity):
			return database.NewValidationError(field+".price", "is too large")
		}
		sum += item.Price * int64(item.Quantity)
	}

	if r.TotalPrice != sum {
		return database.NewValidationError("totalPrice",
			fmt.Sprintf("does not match the order lines (expected %d)", sum))
	}

	if r.PaymentMethod == "" {
		r.PaymentMethod = models.PaymentMethodBankTransfer
	}
	if !r.PaymentMethod.Valid() {
		return database.NewValidationError("paymentMethod", "is not supported")
	}

	r.ShippingAddress = strings.TrimSpace(r.ShippingAddress)
	return nil
}

// requiredStock sums quantities per product so that repeated lines for the
// same product are checked against stock together.
func (r *CreateOrderRequest) requiredStock() ([]int64, map[int64]int) {
	required := make(map[int64]int, len(r.Items))
	for _, item := range r.Items {
		required[item.ProductID] += item.Quantity
	}

	ids := make([]int64, 0, len(required))
	for id := range required {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, required
}

// CreateOrder reserves stock for every line and records the order in one
// transaction. Product rows are locked in ascending id order, so concurrent
// orders on the same products queue behind each other instead of
// overselling; any failure rolls back every decrement.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SET LOCAL lock_timeout = '5s'`); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
		if err := ensureActiveUser(ctx, tx, req.UserID); err != nil {
			return err
		}

		productIDs, required := req.requiredStock()

		for _, productID := range productIDs {
			if _, err := ReserveStock(ctx, tx, productID, required[productID]); err != nil {
				return err
			}
		}

		for _, productID := range productIDs {
			if err := DecrementStock(ctx, tx, productID, required[productID]); err != nil {
				return err
			}
		}

		var orderID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, total_price, status, payment_method, shipping_address, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			 RETURNING id`,
			req.UserID, req.TotalPrice, models.OrderStatusPending, req.PaymentMethod, req.ShippingAddress).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range req.Items {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase)
				 VALUES ($1, $2, $3, $4)`,
				orderID, item.ProductID, item.Quantity, item.Price)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		order, err = GetOrder(ctx, tx, orderID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func ensureActiveUser(ctx context.Context, tx *sql.Tx, userID int64) error {
	var deletedAt sql.NullTime
	err := tx.QueryRowContext(ctx,
		`SELECT deleted_at FROM users WHERE id = $1 FOR SHARE`, userID).Scan(&deletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return database.ErrUserNotFound
		}
		return fmt.Errorf("check user: %w", err)
	}
	if deletedAt.Valid {
		return database.ErrUserBlocked
	}
	return nil
}

// CancelOrder moves a PENDING order to CANCELLED and returns its reserved
// stock. Only the owner or an admin may cancel.
func CancelOrder(ctx context.Context, db *sql.DB, orderID int64, actor Actor) (*models.Order, error) {
	return transitionOrder(ctx, db, orderID, func(locked lockedOrder) (models.OrderStatus, error) {
		if !actor.IsAdmin && locked.UserID != actor.UserID {
			return "", fmt.Errorf("order %d belongs to another user: %w", orderID, database.ErrForbidden)
		}
		return models.OrderStatusCancelled, nil
	})
}

// SetOrderStatus is the admin status override. Transitions are checked
// against models.OrderStatus.CanTransitionTo; moving to CANCELLED releases
// stock exactly as CancelOrder does.
func SetOrderStatus(ctx context.Context, db *sql.DB, orderID int64, next models.OrderStatus) (*models.Order, error) {
	return transitionOrder(ctx, db, orderID, func(lockedOrder) (models.OrderStatus, error) {
		return next, nil
	})
}

type lockedOrder struct {
	ID     int64
	UserID int64
	Status models.OrderStatus
}

func lockOrder(ctx context.Context, tx *sql.Tx, orderID int64) (lockedOrder, error) {
	locked := lockedOrder{ID: orderID}
	err := tx.QueryRowContext(ctx,
		`SELECT user_id, status FROM orders WHERE id = $1 FOR UPDATE`,
		orderID).Scan(&locked.UserID, &locked.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return locked, database.ErrOrderNotFound
		}
		return locked, fmt.Errorf("lock order: %w", err)
	}
	return locked, nil
}

func transitionOrder(ctx context.Context, db *sql.DB, orderID int64, decide func(lockedOrder) (models.OrderStatus, error)) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		locked, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		next, err := decide(locked)
		if err != nil {
			return err
		}

		if !locked.Status.CanTransitionTo(next) {
			return &database.InvalidTransitionError{
				OrderID: orderID,
				From:    string(locked.Status),
				To:      string(next),
			}
		}

		if next == models.OrderStatusCancelled {
			if err := ReleaseStock(ctx, tx, orderID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
			next, orderID)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		order, err = GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// AttachPaymentSlip records the uploaded slip URL and puts the order back into
// PENDING for manual review. Uploading again replaces the previous slip.
func AttachPaymentSlip(ctx context.Context, db *sql.DB, orderID, userID int64, slipURL string) (*models.Order, error) {
	if strings.TrimSpace(slipURL) == "" {
		return nil, database.NewValidationError("slip", "is required")
	}

	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		locked, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := CheckSlipUpload(locked.UserID, locked.Status, orderID, userID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET slip_url = $1, status = $2, updated_at = NOW() WHERE id = $3`,
			slipURL, models.OrderStatusPending, orderID)
		if err != nil {
			return fmt.Errorf("attach payment slip: %w", err)
		}

		order, err = GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// CheckSlipUpload reports whether userID may attach a slip to an order owned
// by ownerID in the given status. Callers use it to refuse a request before
// uploading the file anywhere.
func CheckSlipUpload(ownerID int64, status models.OrderStatus, orderID, userID int64) error {
	if ownerID != userID {
		return fmt.Errorf("order %d belongs to another user: %w", orderID, database.ErrForbidden)
	}
	if status != models.OrderStatusPending {
		return &database.InvalidTransitionError{
			OrderID: orderID,
			From:    string(status),
			To:      string(models.OrderStatusPending),
		}
	}
	return nil
}

const orderSelect = `
	SELECT o.id, o.user_id, o.total_price, o.status, o.payment_method, o.shipping_address,
	       o.payment_intent_id, o.slip_url, o.created_at, o.updated_at
	FROM orders o`

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var paymentIntentID, slipURL sql.NullString

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.TotalPrice,
		&order.Status,
		&order.PaymentMethod,
		&order.ShippingAddress,
		&paymentIntentID,
		&slipURL,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentIntentID.Valid {
		order.PaymentIntentID = &paymentIntentID.String
	}
	if slipURL.Valid {
		order.SlipURL = &slipURL.String
	}
	order.Items = []models.OrderItem{}
	return order, nil
}

func GetOrder(ctx context.Context, db database.Querier, id int64) (*models.Order, error) {
	order, err := scanOrder(db.QueryRowContext(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := attachItems(ctx, db, []*models.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrderFor returns the order when actor owns it or is an admin.
func GetOrderFor(ctx context.Context, db database.Querier, id int64, actor Actor) (*models.Order, error) {
	order, err := GetOrder(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && order.UserID != actor.UserID {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

// attachItems loads the lines (with their products) of every order in one
// query.
func attachItems(ctx context.Context, db database.Querier, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price_at_purchase,
		       p.id, p.name, p.description, p.price, p.stock, p.image_url, p.deleted_at,
		       p.category_id, p.created_at, p.updated_at,
		       c.id, c.name, c.created_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		product := &models.Product{Category: &models.Category{}}
		var deletedAt sql.NullTime

		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.PriceAtPurchase,
			&product.ID,
			&product.Name,
			&product.Description,
			&product.Price,
			&product.Stock,
			&product.ImageURL,
			&deletedAt,
			&product.CategoryID,
			&product.CreatedAt,
			&product.UpdatedAt,
			&product.Category.ID,
			&product.Category.Name,
			&product.Category.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		product.Lifecycle = models.LifecycleFromNullTime(deletedAt)
		item.Product = product

		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

// ListUserOrders pages through a user's orders newest first using a
// (created_at, id) keyset cursor.
func ListUserOrders(ctx context.Context, db database.Querier, userID int64, cursor string, limit int) (*CursorPage[models.Order], error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, database.NewValidationError("cursor", "is malformed")
	}
	limit = NewPageRequest(1, limit).Limit

	rows, err := db.QueryContext(ctx, orderSelect+`
		WHERE o.user_id = $1
		  AND (o.created_at, o.id) < ($2, $3)
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $4`,
		userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	if err := attachItems(ctx, db, orders); err != nil {
		return nil, err
	}

	page := &CursorPage[models.Order]{
		Items:   make([]models.Order, 0, len(orders)),
		HasMore: hasMore,
	}
	for _, o := range orders {
		page.Items = append(page.Items, *o)
	}

	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		page.NextCursor = EncodeCursor(OrderCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return page, nil
}

type OrderFilter struct {
	Status models.OrderStatus
}

// ListOrders returns every order, newest first, with its customer and lines.
func ListOrders(ctx context.Context, db database.Querier, filter OrderFilter) ([]models.Order, error) {
	query := orderSelect
	var args []any
	if filter.Status != "" {
		query += ` WHERE o.status = $1`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY o.created_at DESC, o.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}

	if err := attachItems(ctx, db, orders); err != nil {
		return nil, err
	}
	if err := attachUsers(ctx, db, orders); err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, *o)
	}
	return out, nil
}

func collectOrders(rows *sql.Rows) ([]*models.Order, error) {
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

func attachUsers(ctx context.Context, db database.Querier, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, o := range orders {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			ids = append(ids, o.UserID)
		}
	}

	rows, err := db.QueryContext(ctx, userSelect+` WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order users: %w", err)
	}
	defer rows.Close()

	users := make(map[int64]*models.User, len(ids))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return fmt.Errorf("scan user: %w", err)
		}
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	for _, o := range orders {
		o.User = users[o.UserID]
	}
	return nil
}
