package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

type ProductStatus string

const (
	ProductStatusAny      ProductStatus = ""
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// ProductFilter narrows ListProducts. Zero-valued fields are ignored and
// price bounds are inclusive.
type ProductFilter struct {
	Search       string
	CategoryID   int64
	CategoryName string
	MinPrice     *int64
	MaxPrice     *int64
	Status       ProductStatus
}

type ProductPage struct {
	Products   []models.Product `json:"products"`
	Pagination Pagination       `json:"pagination"`
}

type ProductInput struct {
	Name        string
	Description string
	Price       int64
	Stock       int
	ImageURL    string
	CategoryID  int64
}

func (in ProductInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return database.NewValidationError("name", "is required")
	case in.Price < 0:
		return database.NewValidationError("price", "must not be negative")
	case in.Stock < 0:
		return database.NewValidationError("stock", "must not be negative")
	case in.CategoryID <= 0:
		return database.NewValidationError("categoryId", "is required")
	}
	return nil
}

// ProductPatch holds the fields of an update; nil fields are left unchanged.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *int64
	Stock       *int
	ImageURL    *string
	CategoryID  *int64
}

const productSelect = `
	SELECT p.id, p.name, p.description, p.price, p.stock, p.image_url, p.deleted_at,
	       p.category_id, p.created_at, p.updated_at,
	       c.id, c.name, c.created_at
	FROM products p
	JOIN categories c ON c.id = p.category_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{Category: &models.Category{}}
	var deletedAt sql.NullTime

	err := row.Scan(
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
		return nil, err
	}

	product.Lifecycle = models.LifecycleFromNullTime(deletedAt)
	return product, nil
}

func CreateProduct(ctx context.Context, db *sql.DB, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var product *models.Product
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO products (name, description, price, stock, image_url, category_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			 RETURNING id`,
			strings.TrimSpace(in.Name), in.Description, in.Price, in.Stock, in.ImageURL, in.CategoryID).Scan(&id)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return database.ErrCategoryNotFound
			}
			return fmt.Errorf("create product: %w", err)
		}

		product, err = GetProduct(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func GetProduct(ctx context.Context, db database.Querier, id int64) (*models.Product, error) {
	product, err := scanProduct(db.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// GetActiveProduct hides deactivated products from storefront lookups.
func GetActiveProduct(ctx context.Context, db database.Querier, id int64) (*models.Product, error) {
	product, err := GetProduct(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if !product.Lifecycle.IsActive() {
		return nil, database.ErrProductNotFound
	}
	return product, nil
}

func UpdateProduct(ctx context.Context, db *sql.DB, id int64, patch ProductPatch) (*models.Product, error) {
	var product *models.Product

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := scanProduct(tx.QueryRowContext(ctx,
			productSelect+` WHERE p.id = $1 FOR UPDATE OF p`, id))
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}

		in := ProductInput{
			Name:        current.Name,
			Description: current.Description,
			Price:       current.Price,
			Stock:       current.Stock,
			ImageURL:    current.ImageURL,
			CategoryID:  current.CategoryID,
		}
		if patch.Name != nil {
			in.Name = *patch.Name
		}
		if patch.Description != nil {
			in.Description = *patch.Description
		}
		if patch.Price != nil {
			in.Price = *patch.Price
		}
		if patch.Stock != nil {
			in.Stock = *patch.Stock
		}
		if patch.ImageURL != nil {
			in.ImageURL = *patch.ImageURL
		}
		if patch.CategoryID != nil {
			in.CategoryID = *patch.CategoryID
		}
		if err := in.validate(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE products
			 SET name = $1, description = $2, price = $3, stock = $4, image_url = $5,
			     category_id = $6, updated_at = NOW()
			 WHERE id = $7`,
			strings.TrimSpace(in.Name), in.Description, in.Price, in.Stock, in.ImageURL, in.CategoryID, id)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return database.ErrCategoryNotFound
			}
			return fmt.Errorf("update product: %w", err)
		}

		product, err = GetProduct(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

// ToggleProductActive flips a product between active and deactivated.
// Deactivation is refused while any order line references the product.
func ToggleProductActive(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	var product *models.Product

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var deletedAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&deletedAt)
		if err != nil {
			return database.NotFound(err, database.ErrProductNotFound)
		}

		current := models.LifecycleFromNullTime(deletedAt)
		if current.IsActive() {
			var referenced bool
			err := tx.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM order_items WHERE product_id = $1)", id).Scan(&referenced)
			if err != nil {
				return fmt.Errorf("check product references: %w", err)
			}
			if referenced {
				return database.ErrProductReferenced
			}
		}

		next := current.Toggle(time.Now())
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET deleted_at = $1, updated_at = NOW() WHERE id = $2`,
			next.NullTime(), id)
		if err != nil {
			return fmt.Errorf("toggle product: %w", err)
		}

		product, err = GetProduct(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func ListProducts(ctx context.Context, db database.Querier, filter ProductFilter, page PageRequest) (*ProductPage, error) {
	where, args := filter.where()

	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products p JOIN categories c ON c.id = p.category_id`+where,
		args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	query := productSelect + where + fmt.Sprintf(`
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	rows, err := db.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &ProductPage{
		Products:   products,
		Pagination: newPagination(total, page),
	}, nil
}

func (f ProductFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if s := strings.TrimSpace(f.Search); s != "" {
		add(`p.name ILIKE ('%%' || $%d || '%%')`, escapeLike(s))
	}
	if f.CategoryID > 0 {
		add(`p.category_id = $%d`, f.CategoryID)
	}
	if name := strings.TrimSpace(f.CategoryName); name != "" {
		add(`LOWER(c.name) = LOWER($%d)`, name)
	}
	if f.MinPrice != nil {
		add(`p.price >= $%d`, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add(`p.price <= $%d`, *f.MaxPrice)
	}
	switch f.Status {
	case ProductStatusActive:
		conds = append(conds, `p.deleted_at IS NULL`)
	case ProductStatusInactive:
		conds = append(conds, `p.deleted_at IS NOT NULL`)
	}

	if len(conds) == 0 {
		return "", args
	}
	return "\n\tWHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
