package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/storefront/internal/database"
)

// StockLevel is a product's stock as seen under its row lock.
type StockLevel struct {
	ProductID int64
	Name      string
	Stock     int
	Active    bool
}

// ReserveStock locks the product row for the rest of the transaction and
// checks that quantity units are available.
func ReserveStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) (*StockLevel, error) {
	row := &StockLevel{ProductID: productID}
	var deletedAt sql.NullTime

	err := tx.QueryRowContext(ctx,
		`SELECT name, stock, deleted_at
		 FROM products
		 WHERE id = $1
		 FOR UPDATE`,
		productID).Scan(&row.Name, &row.Stock, &deletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("product %d: %w", productID, database.ErrProductNotFound)
		}
		return nil, fmt.Errorf("lock product %d: %w", productID, err)
	}
	row.Active = !deletedAt.Valid

	if !row.Active {
		return nil, database.NewValidationError("items",
			fmt.Sprintf("product %d (%s) is no longer available", productID, row.Name))
	}

	if row.Stock < quantity {
		return nil, &database.OutOfStockError{
			ProductID:   productID,
			ProductName: row.Name,
			Requested:   quantity,
			Available:   row.Stock,
		}
	}

	return row, nil
}

func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &database.OutOfStockError{ProductID: productID, Requested: quantity}
	}

	return nil
}

// ReleaseStock adds every line of the order back to its product's stock.
// Product rows are locked in id order first, matching CreateOrder.
func ReleaseStock(ctx context.Context, tx *sql.Tx, orderID int64) error {
	_, err := tx.ExecContext(ctx,
		`SELECT id FROM products
		 WHERE id IN (SELECT product_id FROM order_items WHERE order_id = $1)
		 ORDER BY id
		 FOR UPDATE`,
		orderID)
	if err != nil {
		return fmt.Errorf("lock order products: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE products p
		 SET stock = p.stock + l.quantity,
		     updated_at = NOW()
		 FROM (SELECT product_id, SUM(quantity) AS quantity
		       FROM order_items
		       WHERE order_id = $1
		       GROUP BY product_id) l
		 WHERE p.id = l.product_id`,
		orderID)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}

	return nil
}
