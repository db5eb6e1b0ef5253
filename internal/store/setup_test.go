package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Postgres container unavailable: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(25)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if _, err := database.Migrate(ctx, db, "../../migrations", database.Up); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func createUser(t *testing.T, db *sql.DB, name string, role models.Role) *models.User {
	t.Helper()
	user, err := store.SyncUser(context.Background(), db, store.SyncUserRequest{
		ExternalID: "auth0|" + name,
		Email:      name + "@example.com",
		Role:       role,
	})
	if err != nil {
		t.Fatalf("Create user %s: %v", name, err)
	}
	return user
}

func createCategory(t *testing.T, db *sql.DB, name string) *models.Category {
	t.Helper()
	category, err := store.CreateCategory(context.Background(), db, name)
	if err != nil {
		t.Fatalf("Create category %s: %v", name, err)
	}
	return category
}

func createProduct(t *testing.T, db *sql.DB, categoryID int64, name string, price int64, stock int) *models.Product {
	t.Helper()
	product, err := store.CreateProduct(context.Background(), db, store.ProductInput{
		Name:       name,
		Price:      price,
		Stock:      stock,
		CategoryID: categoryID,
	})
	if err != nil {
		t.Fatalf("Create product %s: %v", name, err)
	}
	return product
}

func stockOf(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()
	product, err := store.GetProduct(context.Background(), db, productID)
	if err != nil {
		t.Fatalf("Get product %d: %v", productID, err)
	}
	return product.Stock
}

func countOrders(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		t.Fatalf("Count orders: %v", err)
	}
	return n
}

func line(product *models.Product, quantity int) store.OrderItemRequest {
	return store.OrderItemRequest{ProductID: product.ID, Quantity: quantity, Price: product.Price}
}

func orderRequest(userID int64, items ...store.OrderItemRequest) store.CreateOrderRequest {
	var total int64
	for _, item := range items {
		total += item.Price * int64(item.Quantity)
	}
	return store.CreateOrderRequest{
		UserID:          userID,
		Items:           items,
		TotalPrice:      total,
		ShippingAddress: "1 Main St",
	}
}
