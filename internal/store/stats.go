package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

const recentUsersLimit = 5

type DashboardStats struct {
	Revenue            int64                        `json:"revenue"`
	ShippedRevenue     int64                        `json:"shippedRevenue"`
	TotalOrders        int64                        `json:"totalOrders"`
	OrdersByStatus     map[models.OrderStatus]int64 `json:"ordersByStatus"`
	TotalProducts      int64                        `json:"totalProducts"`
	ActiveProducts     int64                        `json:"activeProducts"`
	OutOfStockProducts int64                        `json:"outOfStockProducts"`
	TotalCategories    int64                        `json:"totalCategories"`
	TotalUsers         int64                        `json:"totalUsers"`
	RecentUsers        []models.User                `json:"recentUsers"`
}

// GetDashboardStats computes every figure inside one read-only snapshot so
// the numbers agree with each other.
func GetDashboardStats(ctx context.Context, db *sql.DB) (*DashboardStats, error) {
	stats := &DashboardStats{
		OrdersByStatus: map[models.OrderStatus]int64{
			models.OrderStatusPending:   0,
			models.OrderStatusPaid:      0,
			models.OrderStatusShipped:   0,
			models.OrderStatusCancelled: 0,
		},
		RecentUsers: []models.User{},
	}

	err := database.WithTransaction(ctx, db, database.SnapshotTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(total_price) FILTER (WHERE status = $1), 0),
			        COALESCE(SUM(total_price) FILTER (WHERE status = $2), 0)
			 FROM orders`,
			models.OrderStatusPaid, models.OrderStatusShipped).Scan(&stats.Revenue, &stats.ShippedRevenue)
		if err != nil {
			return fmt.Errorf("sum revenue: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		for rows.Next() {
			var status models.OrderStatus
			var count int64
			if err := rows.Scan(&status, &count); err != nil {
				rows.Close()
				return fmt.Errorf("scan order count: %w", err)
			}
			stats.OrdersByStatus[status] = count
			stats.TotalOrders += count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*),
			        COUNT(*) FILTER (WHERE deleted_at IS NULL),
			        COUNT(*) FILTER (WHERE stock = 0)
			 FROM products`).Scan(&stats.TotalProducts, &stats.ActiveProducts, &stats.OutOfStockProducts)
		if err != nil {
			return fmt.Errorf("count products: %w", err)
		}

		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&stats.TotalCategories)
		if err != nil {
			return fmt.Errorf("count categories: %w", err)
		}

		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}

		recent, err := ListUsers(ctx, tx, PageRequest{Page: 1, Limit: recentUsersLimit})
		if err != nil {
			return err
		}
		stats.RecentUsers = recent.Users
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
