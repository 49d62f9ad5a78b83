// internal/storage/token_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/datalink-labs/datalink-backend/internal/domain"
)

// ErrTokenNotFound signals that no stored token exists for a connection.
var ErrTokenNotFound = errors.New("session token not found")

// UpsertToken stores a token for a connection, overwriting any previous one.
// Issuance is last-write-wins per connection id.
func UpsertToken(ctx context.Context, db *sql.DB, t *domain.SessionToken) error {
	sqlStatement := `INSERT INTO session_tokens (connection_id, user_id, token, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET user_id = excluded.user_id,
			token = excluded.token, expires_at = excluded.expires_at`
	_, err := db.ExecContext(ctx, sqlStatement, t.ConnectionID, t.UserID, t.Token, t.ExpiresAt.Unix())
	if err != nil {
		customLog.Warnf("Storage: Failed to upsert token for connection %s: %v", t.ConnectionID, err)
		return fmt.Errorf("database error storing session token: %w", err)
	}
	return nil
}

// FindToken retrieves the stored token for a connection, scoped to the owning
// user. Expiry is NOT checked here; that is the token store's job.
func FindToken(ctx context.Context, db *sql.DB, userID, connectionID string) (*domain.SessionToken, error) {
	sqlStatement := `SELECT connection_id, user_id, token, expires_at FROM session_tokens
		WHERE connection_id = ? AND user_id = ? LIMIT 1`
	var t domain.SessionToken
	var expiresAt int64
	err := db.QueryRowContext(ctx, sqlStatement, connectionID, userID).
		Scan(&t.ConnectionID, &t.UserID, &t.Token, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		customLog.Warnf("Storage: Failed to find token for connection %s: %v", connectionID, err)
		return nil, fmt.Errorf("database error finding session token: %w", err)
	}
	t.ExpiresAt = time.Unix(expiresAt, 0)
	return &t, nil
}

// DeleteToken removes the stored token for a connection. Idempotent.
func DeleteToken(ctx context.Context, db *sql.DB, userID, connectionID string) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE connection_id = ? AND user_id = ?`, connectionID, userID)
	if err != nil {
		customLog.Warnf("Storage: Failed to delete token for connection %s: %v", connectionID, err)
		return fmt.Errorf("database error deleting session token: %w", err)
	}
	return nil
}

// DeleteExpiredTokens evicts every token whose expiry is at or before now.
// Returns the number of rows removed.
func DeleteExpiredTokens(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM session_tokens WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		customLog.Warnf("Storage: Failed to sweep expired tokens: %v", err)
		return 0, fmt.Errorf("database error sweeping expired tokens: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("database error sweeping expired tokens: %w", err)
	}
	return rows, nil
}
