// internal/storage/user_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/datalink-labs/datalink-backend/internal/domain"
)

// Specific errors for user operations
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CreateUser inserts a new user into the metadata database.
func CreateUser(ctx context.Context, db *sql.DB, id, username, email, passwordHash string) (string, error) {
	sqlStatement := `INSERT INTO users (id, username, email, password_hash) VALUES (?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, sqlStatement, id, username, email, passwordHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			if strings.Contains(sqliteErr.Error(), "users.email") {
				return "", ErrEmailExists
			}
		}
		customLog.Warnf("Storage: Failed to insert user %s: %v", email, err)
		return "", fmt.Errorf("database error during user creation: %w", err)
	}
	return id, nil
}

// FindUserByEmail retrieves a user by their email address.
func FindUserByEmail(ctx context.Context, db *sql.DB, email string) (*domain.User, error) {
	sqlStatement := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = ? LIMIT 1`
	row := db.QueryRowContext(ctx, sqlStatement, email)
	var user domain.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		customLog.Warnf("Storage: Failed to find user by email %s: %v", email, err)
		return nil, fmt.Errorf("database error finding user: %w", err)
	}
	return &user, nil
}
