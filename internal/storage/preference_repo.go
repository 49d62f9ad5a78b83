// internal/storage/preference_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetSelectedConnection persists the user's selected database preference.
func SetSelectedConnection(ctx context.Context, db *sql.DB, userID, connectionID string) error {
	sqlStatement := `INSERT INTO preferences (user_id, selected_connection_id) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET selected_connection_id = excluded.selected_connection_id`
	_, err := db.ExecContext(ctx, sqlStatement, userID, connectionID)
	if err != nil {
		customLog.Warnf("Storage: Failed to set preference for user %s: %v", userID, err)
		return fmt.Errorf("database error storing preference: %w", err)
	}
	return nil
}

// GetSelectedConnection returns the user's selected database preference, or
// empty string when none was ever set.
func GetSelectedConnection(ctx context.Context, db *sql.DB, userID string) (string, error) {
	var connectionID string
	err := db.QueryRowContext(ctx,
		`SELECT selected_connection_id FROM preferences WHERE user_id = ? LIMIT 1`, userID).Scan(&connectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		customLog.Warnf("Storage: Failed to read preference for user %s: %v", userID, err)
		return "", fmt.Errorf("database error reading preference: %w", err)
	}
	return connectionID, nil
}
