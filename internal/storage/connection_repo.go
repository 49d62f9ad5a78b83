// internal/storage/connection_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/datalink-labs/datalink-backend/internal/domain"
)

// Specific errors for connection registry operations
var (
	ErrConnectionExists   = errors.New("a connection with this name already exists")
	ErrConnectionNotFound = errors.New("connection not found")
)

const connectionColumns = `id, user_id, name, kind, locality, host, port, username,
	password_enc, conn_string_enc, ssl, status, fingerprint, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*domain.Connection, error) {
	var c domain.Connection
	var ssl int
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.Locality, &c.Host, &c.Port,
		&c.Username, &c.Password, &c.ConnString, &ssl, &c.Status, &c.Fingerprint, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.SSL = ssl == 1
	return &c, nil
}

// InsertConnection stores a new connection row. Secrets are expected to be
// encrypted already by the caller.
func InsertConnection(ctx context.Context, db *sql.DB, c *domain.Connection) error {
	sqlStatement := `INSERT INTO connections
		(id, user_id, name, kind, locality, host, port, username, password_enc, conn_string_enc, ssl, status, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	ssl := 0
	if c.SSL {
		ssl = 1
	}
	_, err := db.ExecContext(ctx, sqlStatement, c.ID, c.UserID, c.Name, c.Kind, c.Locality,
		c.Host, c.Port, c.Username, c.Password, c.ConnString, ssl, c.Status, c.Fingerprint)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrConnectionExists
		}
		customLog.Warnf("Storage: Failed to insert connection '%s' for user %s: %v", c.Name, c.UserID, err)
		return fmt.Errorf("database error inserting connection: %w", err)
	}
	return nil
}

// UpdateConnection rewrites the mutable attributes of a connection row.
func UpdateConnection(ctx context.Context, db *sql.DB, c *domain.Connection) error {
	sqlStatement := `UPDATE connections SET name = ?, kind = ?, locality = ?, host = ?, port = ?,
		username = ?, password_enc = ?, conn_string_enc = ?, ssl = ?, fingerprint = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`
	ssl := 0
	if c.SSL {
		ssl = 1
	}
	result, err := db.ExecContext(ctx, sqlStatement, c.Name, c.Kind, c.Locality, c.Host, c.Port,
		c.Username, c.Password, c.ConnString, ssl, c.Fingerprint, c.ID, c.UserID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrConnectionExists
		}
		customLog.Warnf("Storage: Failed to update connection %s: %v", c.ID, err)
		return fmt.Errorf("database error updating connection: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("database error updating connection: %w", err)
	}
	if rows == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// UpdateConnectionStatus sets only the status column.
func UpdateConnectionStatus(ctx context.Context, db *sql.DB, userID, id string, status domain.ConnectionStatus) error {
	sqlStatement := `UPDATE connections SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?`
	result, err := db.ExecContext(ctx, sqlStatement, status, id, userID)
	if err != nil {
		customLog.Warnf("Storage: Failed to update status for connection %s: %v", id, err)
		return fmt.Errorf("database error updating connection status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("database error updating connection status: %w", err)
	}
	if rows == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// FindConnection retrieves one connection owned by the given user.
func FindConnection(ctx context.Context, db *sql.DB, userID, id string) (*domain.Connection, error) {
	sqlStatement := `SELECT ` + connectionColumns + ` FROM connections WHERE id = ? AND user_id = ? LIMIT 1`
	conn, err := scanConnection(db.QueryRowContext(ctx, sqlStatement, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		customLog.Warnf("Storage: Failed to find connection %s: %v", id, err)
		return nil, fmt.Errorf("database error finding connection: %w", err)
	}
	return conn, nil
}

// ListConnections returns one page of a user's connections ordered by creation
// time, plus the total row count for pagination.
func ListConnections(ctx context.Context, db *sql.DB, userID string, page, pageSize int) ([]domain.Connection, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connections WHERE user_id = ?`, userID).Scan(&total); err != nil {
		customLog.Warnf("Storage: Failed to count connections for user %s: %v", userID, err)
		return nil, 0, fmt.Errorf("database error counting connections: %w", err)
	}

	sqlStatement := `SELECT ` + connectionColumns + ` FROM connections
		WHERE user_id = ? ORDER BY created_at, id LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, sqlStatement, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		customLog.Warnf("Storage: Failed to list connections for user %s: %v", userID, err)
		return nil, 0, fmt.Errorf("database error listing connections: %w", err)
	}
	defer rows.Close()

	connections := []domain.Connection{}
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("database error scanning connection: %w", err)
		}
		connections = append(connections, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("database error listing connections: %w", err)
	}
	return connections, total, nil
}

// FindConnectionByFingerprint looks for an existing connection with the same
// target details (used for duplicate detection). The fingerprint is computed
// by the registry over the plaintext target fields, since encrypted secrets
// are not comparable.
func FindConnectionByFingerprint(ctx context.Context, db *sql.DB, userID, fingerprint string) (*domain.Connection, error) {
	sqlStatement := `SELECT ` + connectionColumns + ` FROM connections
		WHERE user_id = ? AND fingerprint = ? LIMIT 1`
	conn, err := scanConnection(db.QueryRowContext(ctx, sqlStatement, userID, fingerprint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("database error finding connection by target: %w", err)
	}
	return conn, nil
}

// DeleteConnection removes a connection row. Returns the number of rows
// removed so callers can stay idempotent.
func DeleteConnection(ctx context.Context, db *sql.DB, userID, id string) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM connections WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		customLog.Warnf("Storage: Failed to delete connection %s: %v", id, err)
		return 0, fmt.Errorf("database error deleting connection: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("database error deleting connection: %w", err)
	}
	return rows, nil
}
