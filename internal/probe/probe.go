// internal/probe/probe.go
package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2" // Driver registration
	_ "github.com/go-sql-driver/mysql"         // Driver registration
	_ "github.com/lib/pq"                      // Driver registration

	"github.com/datalink-labs/datalink-backend/internal/domain"
	"github.com/datalink-labs/datalink-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// ErrUnsupportedKind signals a probe attempt against a kind with no driver
// (MongoDB; the registry rejects it before reaching here).
var ErrUnsupportedKind = errors.New("no connectivity probe for this database kind")

// Result is the outcome of a successful probe. Warning is set when the
// database answered, but not on the terms the connection asked for (currently:
// SSL was requested and only a plaintext channel worked).
type Result struct {
	Warning bool
	Message string
}

// Prober checks reachability of a registered database and offers read-only
// introspection. The connection passed in carries decrypted secrets.
type Prober interface {
	Probe(ctx context.Context, conn *domain.Connection) (Result, error)
	Schema(ctx context.Context, conn *domain.Connection) ([]string, error)
	TableData(ctx context.Context, conn *domain.Connection, table string, limit int) ([]map[string]any, error)
}

// SQLProber dials the target with the matching database/sql driver.
type SQLProber struct {
	Timeout time.Duration
}

// NewSQLProber creates a prober with the given dial/ping timeout.
func NewSQLProber(timeout time.Duration) *SQLProber {
	return &SQLProber{Timeout: timeout}
}

// Probe opens a pooled handle and pings it. For local connections with SSL
// requested, a failed secure ping is retried once without SSL; success on the
// retry is reported as a warning rather than a hard failure.
func (p *SQLProber) Probe(ctx context.Context, conn *domain.Connection) (Result, error) {
	driver, dsn, err := buildDSN(conn, conn.SSL)
	if err != nil {
		return Result{}, err
	}

	pingErr := p.ping(ctx, driver, dsn)
	if pingErr == nil {
		return Result{Message: "connection successful"}, nil
	}

	// Secure channel refused; see whether the server is reachable at all.
	if conn.SSL && conn.Locality == domain.LocalityLocal {
		_, plainDSN, err := buildDSN(conn, false)
		if err == nil && p.ping(ctx, driver, plainDSN) == nil {
			customLog.Warnf("Probe: connection %s reachable only without SSL", conn.ID)
			return Result{Warning: true, Message: "reachable, but the server did not accept an SSL connection"}, nil
		}
	}

	return Result{}, fmt.Errorf("connectivity probe failed: %w", pingErr)
}

func (p *SQLProber) ping(ctx context.Context, driver, dsn string) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return db.PingContext(pingCtx)
}

// open returns a live handle for introspection queries.
func (p *SQLProber) open(ctx context.Context, conn *domain.Connection) (*sql.DB, error) {
	driver, dsn, err := buildDSN(conn, conn.SSL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connectivity probe failed: %w", err)
	}
	return db, nil
}

// Schema lists the table names visible to the connection's credentials.
func (p *SQLProber) Schema(ctx context.Context, conn *domain.Connection) ([]string, error) {
	db, err := p.open(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var query string
	switch conn.Kind {
	case domain.KindPostgres:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`
	case domain.KindMySQL, domain.KindClickHouse:
		query = `SHOW TABLES`
	default:
		return nil, ErrUnsupportedKind
	}

	queryCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	rows, err := db.QueryContext(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// TableData returns up to limit rows of one table as generic maps. The table
// name must already be validated as an identifier by the caller.
func (p *SQLProber) TableData(ctx context.Context, conn *domain.Connection, table string, limit int) ([]map[string]any, error) {
	db, err := p.open(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	queryCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	// Identifier validated upstream; LIMIT is parameterized where drivers allow,
	// but ClickHouse and MySQL both accept it inline which keeps this portable.
	rows, err := db.QueryContext(queryCtx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read table data: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	data := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		data = append(data, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table data: %w", err)
	}
	return data, nil
}

// buildDSN maps a connection onto a database/sql driver name and DSN.
func buildDSN(conn *domain.Connection, ssl bool) (string, string, error) {
	if conn.Locality == domain.LocalityExternal {
		switch conn.Kind {
		case domain.KindPostgres:
			return "postgres", conn.ConnString, nil
		case domain.KindMySQL:
			return "mysql", conn.ConnString, nil
		case domain.KindClickHouse:
			return "clickhouse", conn.ConnString, nil
		default:
			return "", "", ErrUnsupportedKind
		}
	}

	switch conn.Kind {
	case domain.KindPostgres:
		sslmode := "disable"
		if ssl {
			sslmode = "require"
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=%s",
			conn.Host, conn.Port, conn.Username, conn.Password, sslmode)
		return "postgres", dsn, nil
	case domain.KindMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/?tls=%t", conn.Username, conn.Password, conn.Host, conn.Port, ssl)
		return "mysql", dsn, nil
	case domain.KindClickHouse:
		dsn := fmt.Sprintf("clickhouse://%s:%s@%s:%d/default?secure=%t",
			conn.Username, conn.Password, conn.Host, conn.Port, ssl)
		return "clickhouse", dsn, nil
	default:
		return "", "", ErrUnsupportedKind
	}
}
