// internal/storage/database.go
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Driver registration

	"github.com/datalink-labs/datalink-backend/config"
	"github.com/datalink-labs/datalink-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// ConnectMetadataDB initializes the connection pool for the metadata SQLite database
// and ensures the required tables ('users', 'connections', 'session_tokens',
// 'preferences') exist.
func ConnectMetadataDB(cfg *config.Config) (*sql.DB, error) {
	dbPath := filepath.Join(cfg.MetadataDbDir, cfg.MetadataDbFile)
	customLog.Printf("Storage: Initializing metadata database: %s", dbPath)

	// Ensure the data directory exists
	if err := os.MkdirAll(cfg.MetadataDbDir, 0o750); err != nil {
		customLog.Warnf("Storage: Error creating data directory '%s': %v", cfg.MetadataDbDir, err)
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		customLog.Warnf("Storage: Failed to open metadata db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to open metadata db: %w", err)
	}

	// Verify connection is working
	if err = db.Ping(); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to ping metadata db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to connect to metadata db: %w", err)
	}
	customLog.Println("Storage: Metadata database connection successful.")

	createUsersTableSQL := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err = db.Exec(createUsersTableSQL); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to create users table: %v", err)
		return nil, fmt.Errorf("failed to ensure users table: %w", err)
	}

	createConnectionsTableSQL := `
	CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		locality TEXT NOT NULL,
		host TEXT NOT NULL DEFAULT '',
		port INTEGER NOT NULL DEFAULT 0,
		username TEXT NOT NULL DEFAULT '',
		password_enc TEXT NOT NULL DEFAULT '',
		conn_string_enc TEXT NOT NULL DEFAULT '',
		ssl INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'disconnected',
		fingerprint TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, name),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);`
	if _, err = db.Exec(createConnectionsTableSQL); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to create connections table: %v", err)
		return nil, fmt.Errorf("failed to ensure connections table: %w", err)
	}

	// One row per connection id; issuance is an UPSERT so a re-issue
	// overwrites rather than stacks. Expiry is unix seconds to keep the
	// sweep's comparison free of timezone parsing.
	createTokensTableSQL := `
	CREATE TABLE IF NOT EXISTS session_tokens (
		connection_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		token TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);`
	if _, err = db.Exec(createTokensTableSQL); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to create session_tokens table: %v", err)
		return nil, fmt.Errorf("failed to ensure session_tokens table: %w", err)
	}

	createPreferencesTableSQL := `
	CREATE TABLE IF NOT EXISTS preferences (
		user_id TEXT PRIMARY KEY,
		selected_connection_id TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);`
	if _, err = db.Exec(createPreferencesTableSQL); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to create preferences table: %v", err)
		return nil, fmt.Errorf("failed to ensure preferences table: %w", err)
	}

	customLog.Println("Storage: Metadata tables ensured.")
	return db, nil
}
