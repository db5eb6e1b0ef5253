package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

func CreateCategory(ctx context.Context, db database.Querier, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, database.NewValidationError("name", "is required")
	}

	category := &models.Category{}
	err := db.QueryRowContext(ctx,
		`INSERT INTO categories (name, created_at)
		 VALUES ($1, NOW())
		 RETURNING id, name, created_at`,
		name).Scan(&category.ID, &category.Name, &category.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "categories_name_key") {
			return nil, database.ErrDuplicateCategory
		}
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}

func GetCategory(ctx context.Context, db database.Querier, id int64) (*models.Category, error) {
	category := &models.Category{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM categories WHERE id = $1`,
		id).Scan(&category.ID, &category.Name, &category.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return category, nil
}

func ListCategories(ctx context.Context, db database.Querier) ([]models.Category, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}
