// internal/session/store.go
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datalink-labs/datalink-backend/internal/compute"
	"github.com/datalink-labs/datalink-backend/internal/domain"
	"github.com/datalink-labs/datalink-backend/internal/logger"
	"github.com/datalink-labs/datalink-backend/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

// ErrNoToken signals that no live token exists for a connection. Expired
// tokens count as absent.
var ErrNoToken = errors.New("no live session token for this connection")

// Connector is the slice of the compute client the store needs. Narrowed to
// an interface so tests can stub issuance.
type Connector interface {
	Connect(ctx context.Context, req compute.ConnectRequest) (*compute.ConnectResponse, error)
}

// Store owns the session-token map: issuance against the compute service,
// expiry-aware lookup, revocation, and the background sweep. Tokens are
// persisted in the metadata database so they survive a restart, scoped by
// user id so they never leak across identities.
type Store struct {
	db            *sql.DB
	connector     Connector
	duration      time.Duration
	sweepInterval time.Duration
}

// NewStore creates a token store. duration is the session lifetime requested
// from the compute service; sweepInterval bounds how often the background
// sweep runs.
func NewStore(db *sql.DB, connector Connector, duration, sweepInterval time.Duration) *Store {
	return &Store{
		db:            db,
		connector:     connector,
		duration:      duration,
		sweepInterval: sweepInterval,
	}
}

// Issue exchanges a connection for a session token. The connection must carry
// decrypted secrets. On success the stored token for that connection id is
// overwritten; on failure stored state is untouched.
func (s *Store) Issue(ctx context.Context, conn *domain.Connection) (*domain.SessionToken, error) {
	req := compute.ConnectRequest{
		ConnectionType:         string(conn.Locality),
		DatabaseType:           string(conn.Kind),
		SessionDurationMinutes: int(s.duration.Minutes()),
		StoreSchema:            true,
	}

	if conn.Locality == domain.LocalityLocal {
		req.Credentials = &compute.Credentials{
			Host:     conn.Host,
			Port:     conn.Port,
			Username: conn.Username,
			Password: conn.Password,
		}
	} else {
		req.ConnectionString = rewriteConnString(conn.Kind, conn.ConnString)
	}

	resp, err := s.connector.Connect(ctx, req)
	if err != nil {
		customLog.Warnf("Session: issuance failed for connection %s: %v", conn.ID, err)
		return nil, fmt.Errorf("failed to obtain session token: %w", err)
	}

	token := &domain.SessionToken{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		Token:        resp.SessionID,
		ExpiresAt:    s.parseExpiry(resp.ExpiresAt),
	}
	if err := storage.UpsertToken(ctx, s.db, token); err != nil {
		return nil, err
	}

	customLog.Printf("Session: issued token for connection %s (expires %v)", conn.ID, token.ExpiresAt)
	return token, nil
}

// Lookup returns the live token for a connection. An expired token behaves as
// absent and is evicted opportunistically; the sweep covers tokens nobody
// looks up.
func (s *Store) Lookup(ctx context.Context, userID, connectionID string) (*domain.SessionToken, error) {
	token, err := storage.FindToken(ctx, s.db, userID, connectionID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	if token.Expired(time.Now()) {
		// Lazy expiry: delete now rather than waiting for the sweep.
		if err := storage.DeleteToken(ctx, s.db, userID, connectionID); err != nil {
			customLog.Warnf("Session: failed to evict expired token for connection %s: %v", connectionID, err)
		}
		return nil, ErrNoToken
	}
	return token, nil
}

// Revoke removes any stored token for the connection. Idempotent.
func (s *Store) Revoke(ctx context.Context, userID, connectionID string) error {
	return storage.DeleteToken(ctx, s.db, userID, connectionID)
}

// StartSweeper launches the background expiry sweep. It runs until the given
// context is cancelled. The interval is bounded at construction time; token
// lifetimes are minutes, so anything tighter than seconds is waste.
func (s *Store) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		customLog.Printf("Session: expiry sweep running every %v", s.sweepInterval)
		for {
			select {
			case <-ctx.Done():
				customLog.Println("Session: expiry sweep stopped")
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

func (s *Store) sweepOnce(ctx context.Context) {
	removed, err := storage.DeleteExpiredTokens(ctx, s.db, time.Now())
	if err != nil {
		customLog.Warnf("Session: sweep failed: %v", err)
		return
	}
	if removed > 0 {
		customLog.Printf("Session: sweep evicted %d expired token(s)", removed)
	}
}

// parseExpiry trusts the remote expiry timestamp when it parses, and falls
// back to the locally requested duration when it does not.
func (s *Store) parseExpiry(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Now().Add(s.duration)
}

// rewriteConnString maps a native scheme onto the transport scheme the
// compute service expects. ClickHouse is reached over its HTTPS interface.
func rewriteConnString(kind domain.DatabaseKind, connString string) string {
	if kind == domain.KindClickHouse && strings.HasPrefix(connString, "clickhouse://") {
		return "https://" + strings.TrimPrefix(connString, "clickhouse://")
	}
	return connString
}
