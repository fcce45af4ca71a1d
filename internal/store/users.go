package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/tracky/internal/db"
	"github.com/erazemk/tracky/internal/model"
)

const userColumns = `id, username, password_hash, role, created_at, deleted_at`

// CreateUser creates a new user.
func CreateUser(ctx context.Context, database *db.DB, username, passwordHash string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", model.ErrInvalidArgument, role)
	}

	var id int64
	err := database.QueryRowContext(ctx,
		database.Rebind(`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?) RETURNING id`),
		username, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return GetUser(ctx, database, id)
}

// GetUser returns a user by ID, or nil if it does not exist.
func GetUser(ctx context.Context, database *db.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := database.QueryRowContext(ctx,
		database.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with username, or nil.
func GetUserByUsername(ctx context.Context, database *db.DB, username string) (*model.User, error) {
	u := &model.User{}
	err := database.QueryRowContext(ctx,
		database.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`), username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, database *db.DB) ([]model.User, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserRole changes a user's role.
func UpdateUserRole(ctx context.Context, database *db.DB, id int64, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", model.ErrInvalidArgument, role)
	}
	_, err := database.ExecContext(ctx,
		database.Rebind(`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`),
		string(role), id,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, database *db.DB, id int64, passwordHash string) error {
	_, err := database.ExecContext(ctx,
		database.Rebind(`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`),
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, database *db.DB, id int64) error {
	_, err := database.ExecContext(ctx,
		database.Rebind(`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`),
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// CountUsers returns the number of active users.
func CountUsers(ctx context.Context, database *db.DB) (int, error) {
	var n int
	err := database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}
