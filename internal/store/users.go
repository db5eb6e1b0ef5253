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

type SyncUserRequest struct {
	ExternalID string
	Email      string
	Role       models.Role
}

type UserPage struct {
	Users      []models.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

const userSelect = `
	SELECT id, external_auth_id, email, role, deleted_at, created_at, updated_at
	FROM users`

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var deletedAt sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.ExternalAuthID,
		&user.Email,
		&user.Role,
		&deletedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Lifecycle = models.LifecycleFromNullTime(deletedAt)
	return user, nil
}

// SyncUser upserts the local record for an external identity, refreshing
// email and role from the latest verified claims. A deactivated record is
// left untouched and reported as database.ErrUserBlocked.
func SyncUser(ctx context.Context, db database.Querier, req SyncUserRequest) (*models.User, error) {
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case req.ExternalID == "":
		return nil, database.NewValidationError("sub", "is required")
	case req.Email == "":
		return nil, database.NewValidationError("email", "is required")
	}
	if req.Role != models.RoleAdmin {
		req.Role = models.RoleUser
	}

	user, err := scanUser(db.QueryRowContext(ctx,
		`INSERT INTO users (external_auth_id, email, role, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (external_auth_id) DO UPDATE
		 SET email = EXCLUDED.email,
		     role = EXCLUDED.role,
		     updated_at = NOW()
		 WHERE users.deleted_at IS NULL
		 RETURNING id, external_auth_id, email, role, deleted_at, created_at, updated_at`,
		req.ExternalID, req.Email, req.Role))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserBlocked
		}
		if database.IsUniqueViolation(err, "users_email_key") {
			return nil, database.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("sync user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, db database.Querier, id int64) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx, userSelect+` WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func ListUsers(ctx context.Context, db database.Querier, page PageRequest) (*UserPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	rows, err := db.QueryContext(ctx, userSelect+`
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &UserPage{
		Users:      users,
		Pagination: newPagination(total, page),
	}, nil
}

// ToggleUserActive blocks or unblocks a user. Admins cannot block
// themselves.
func ToggleUserActive(ctx context.Context, db *sql.DB, id, actingUserID int64) (*models.User, error) {
	if id == actingUserID {
		return nil, database.NewValidationError("id", "cannot change your own account status")
	}

	var user *models.User
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var deletedAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&deletedAt)
		if err != nil {
			return database.NotFound(err, database.ErrUserNotFound)
		}

		next := models.LifecycleFromNullTime(deletedAt).Toggle(time.Now())
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET deleted_at = $1, updated_at = NOW() WHERE id = $2`,
			next.NullTime(), id)
		if err != nil {
			return fmt.Errorf("toggle user: %w", err)
		}

		user, err = GetUser(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}
