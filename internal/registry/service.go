// internal/registry/service.go
package registry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/datalink-labs/datalink-backend/internal/core"
	"github.com/datalink-labs/datalink-backend/internal/crypto"
	"github.com/datalink-labs/datalink-backend/internal/domain"
	"github.com/datalink-labs/datalink-backend/internal/logger"
	"github.com/datalink-labs/datalink-backend/internal/probe"
	"github.com/datalink-labs/datalink-backend/internal/session"
	"github.com/datalink-labs/datalink-backend/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

// Spec is the caller-supplied description of a connection on create/update.
type Spec struct {
	Name       string
	Kind       domain.DatabaseKind
	Locality   domain.Locality
	Host       string
	Port       int
	Username   string
	Password   string
	ConnString string
	SSL        bool
}

// Outcome is the result of a test/connect/disconnect transition.
type Outcome struct {
	Status  domain.ConnectionStatus
	Message string
}

// Service owns the set of registered connections and their connectivity
// status. Status transitions for one connection id are serialized through a
// per-id lock so racing operations cannot interleave into an inconsistent
// status.
type Service struct {
	db          *sql.DB
	crypto      *crypto.EncryptionService
	tokens      *session.Store
	prober      probe.Prober
	enableMongo bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a connection registry.
func NewService(db *sql.DB, enc *crypto.EncryptionService, tokens *session.Store, prober probe.Prober, enableMongo bool) *Service {
	return &Service{
		db:          db,
		crypto:      enc,
		tokens:      tokens,
		prober:      prober,
		enableMongo: enableMongo,
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing transitions for one connection id.
func (s *Service) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// dropLock forgets the mutex for a deleted connection id so the map does not
// grow without bound.
func (s *Service) dropLock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, id)
}

// List returns one page of the user's connections plus the total page count.
func (s *Service) List(ctx context.Context, userID string, page, pageSize int) ([]domain.Connection, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	connections, total, err := storage.ListConnections(ctx, s.db, userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	return connections, totalPages, nil
}

// Get returns one connection with secrets still encrypted.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Connection, error) {
	return storage.FindConnection(ctx, s.db, userID, id)
}

// Create validates and registers a new connection. It starts Disconnected.
func (s *Service) Create(ctx context.Context, userID string, spec Spec) (*domain.Connection, error) {
	if err := validateSpec(spec, false); err != nil {
		return nil, err
	}
	if spec.Kind == domain.KindMongoDB && !s.enableMongo {
		return nil, ErrDisabledFeature
	}

	fingerprint := targetFingerprint(spec)
	if existing, err := storage.FindConnectionByFingerprint(ctx, s.db, userID, fingerprint); err == nil && existing != nil {
		return nil, storage.ErrConnectionExists
	} else if err != nil && !errors.Is(err, storage.ErrConnectionNotFound) {
		return nil, err
	}

	conn := &domain.Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        spec.Name,
		Kind:        spec.Kind,
		Locality:    spec.Locality,
		Host:        spec.Host,
		Port:        spec.Port,
		Username:    spec.Username,
		SSL:         spec.SSL,
		Status:      domain.StatusDisconnected,
		Fingerprint: fingerprint,
	}
	if err := s.encryptSecrets(conn, spec.Password, spec.ConnString); err != nil {
		return nil, err
	}

	if err := storage.InsertConnection(ctx, s.db, conn); err != nil {
		return nil, err
	}
	customLog.Printf("Registry: created connection '%s' (%s) for user %s", conn.Name, conn.ID, userID)
	return conn, nil
}

// Update rewrites a connection's attributes. A blank password (or blank
// connection string, for external connections) means "keep the previous
// credential", never "clear it".
func (s *Service) Update(ctx context.Context, userID, id string, spec Spec) (*domain.Connection, error) {
	existing, err := storage.FindConnection(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}

	// A blank secret only means "keep the previous credential" when a
	// credential of that shape actually exists; switching locality with a
	// blank secret has nothing to keep and must fail validation.
	keepPassword := spec.Password == "" && spec.Locality == domain.LocalityLocal && existing.Password != ""
	keepConnString := spec.ConnString == "" && spec.Locality == domain.LocalityExternal && existing.ConnString != ""
	if err := validateSpec(spec, keepPassword || keepConnString); err != nil {
		return nil, err
	}
	if spec.Kind == domain.KindMongoDB && !s.enableMongo {
		return nil, ErrDisabledFeature
	}

	// The fingerprint covers the connection string, so an update that keeps
	// the previous one must fingerprint the previous plaintext.
	fpSpec := spec
	if keepConnString {
		prev, err := s.crypto.Decrypt(existing.ConnString)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
		}
		fpSpec.ConnString = prev
	}
	fingerprint := targetFingerprint(fpSpec)
	if dup, err := storage.FindConnectionByFingerprint(ctx, s.db, userID, fingerprint); err == nil && dup != nil && dup.ID != id {
		return nil, storage.ErrConnectionExists
	} else if err != nil && !errors.Is(err, storage.ErrConnectionNotFound) {
		return nil, err
	}

	updated := &domain.Connection{
		ID:          id,
		UserID:      userID,
		Name:        spec.Name,
		Kind:        spec.Kind,
		Locality:    spec.Locality,
		Host:        spec.Host,
		Port:        spec.Port,
		Username:    spec.Username,
		SSL:         spec.SSL,
		Status:      existing.Status,
		Fingerprint: fingerprint,
	}
	if err := s.encryptSecrets(updated, spec.Password, spec.ConnString); err != nil {
		return nil, err
	}
	if keepPassword {
		updated.Password = existing.Password
	}
	if keepConnString {
		updated.ConnString = existing.ConnString
	}

	if err := storage.UpdateConnection(ctx, s.db, updated); err != nil {
		return nil, err
	}
	customLog.Printf("Registry: updated connection %s for user %s", id, userID)
	return updated, nil
}

// Delete removes a connection and revokes any associated session token.
// Idempotent on repeated calls.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.tokens.Revoke(ctx, userID, id); err != nil {
		return err
	}
	if _, err := storage.DeleteConnection(ctx, s.db, userID, id); err != nil {
		return err
	}
	s.dropLock(id)
	customLog.Printf("Registry: deleted connection %s for user %s", id, userID)
	return nil
}

// Test probes the connection's reachability. The transient Testing status is
// persisted before the probe runs, so observers can see it; the terminal
// status is Connected, ConnectedWarning, or Disconnected.
func (s *Service) Test(ctx context.Context, userID, id string) (*Outcome, error) {
	return s.transition(ctx, userID, id, domain.StatusTesting, func(res probe.Result) domain.ConnectionStatus {
		if res.Warning {
			return domain.StatusConnectedWarning
		}
		return domain.StatusConnected
	})
}

// Connect brings the connection online through the transient Connecting
// status. On transport failure the connection falls back to Disconnected.
func (s *Service) Connect(ctx context.Context, userID, id string) (*Outcome, error) {
	return s.transition(ctx, userID, id, domain.StatusConnecting, func(res probe.Result) domain.ConnectionStatus {
		if res.Warning {
			return domain.StatusConnectedWarning
		}
		return domain.StatusConnected
	})
}

// Disconnect takes the connection offline through the transient
// Disconnecting status. It never ends in a transient state.
func (s *Service) Disconnect(ctx context.Context, userID, id string) (*Outcome, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	conn, err := storage.FindConnection(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if conn.Kind == domain.KindMongoDB {
		return nil, ErrDisabledFeature
	}

	if err := storage.UpdateConnectionStatus(ctx, s.db, userID, id, domain.StatusDisconnecting); err != nil {
		return nil, err
	}
	if err := storage.UpdateConnectionStatus(ctx, s.db, userID, id, domain.StatusDisconnected); err != nil {
		return nil, err
	}
	return &Outcome{Status: domain.StatusDisconnected, Message: "disconnected"}, nil
}

// transition runs the shared two-phase test/connect flow: persist the
// transient status, probe, then persist the terminal status the resolver
// picks. Any failure after the transient status was set rolls the connection
// back to Disconnected; it is never left mid-transition.
func (s *Service) transition(ctx context.Context, userID, id string, transient domain.ConnectionStatus, resolve func(probe.Result) domain.ConnectionStatus) (*Outcome, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	conn, err := storage.FindConnection(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if conn.Kind == domain.KindMongoDB {
		// Status must not be mutated for MongoDB, not even to a transient.
		return nil, ErrDisabledFeature
	}

	if err := storage.UpdateConnectionStatus(ctx, s.db, userID, id, transient); err != nil {
		return nil, err
	}

	plain, err := s.decryptedCopy(conn)
	if err != nil {
		s.rollback(userID, id)
		return nil, err
	}

	result, probeErr := s.prober.Probe(ctx, plain)
	if probeErr != nil {
		s.rollback(userID, id)
		customLog.Warnf("Registry: probe failed for connection %s: %v", id, probeErr)
		return nil, &TransportError{Err: probeErr}
	}

	terminal := resolve(result)
	if err := storage.UpdateConnectionStatus(ctx, s.db, userID, id, terminal); err != nil {
		s.rollback(userID, id)
		return nil, err
	}
	return &Outcome{Status: terminal, Message: result.Message}, nil
}

// rollback is the best-effort reset to Disconnected after a failed
// transition. Uses a fresh context: the caller's may already be cancelled,
// and a stuck transient status is worse than a late write.
func (s *Service) rollback(userID, id string) {
	if err := storage.UpdateConnectionStatus(context.Background(), s.db, userID, id, domain.StatusDisconnected); err != nil {
		customLog.Warnf("Registry: rollback to disconnected failed for connection %s: %v", id, err)
	}
}

// Schema lists the tables visible through the connection.
func (s *Service) Schema(ctx context.Context, userID, id string) ([]string, error) {
	conn, err := storage.FindConnection(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if conn.Kind == domain.KindMongoDB {
		return nil, ErrDisabledFeature
	}
	plain, err := s.decryptedCopy(conn)
	if err != nil {
		return nil, err
	}
	tables, err := s.prober.Schema(ctx, plain)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return tables, nil
}

// TableData returns a capped sample of one table's rows.
func (s *Service) TableData(ctx context.Context, userID, id, table string, limit int) ([]map[string]any, error) {
	if !core.IsValidIdentifier(table) {
		return nil, &ValidationError{Fields: []string{"table"}}
	}
	conn, err := storage.FindConnection(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if conn.Kind == domain.KindMongoDB {
		return nil, ErrDisabledFeature
	}
	plain, err := s.decryptedCopy(conn)
	if err != nil {
		return nil, err
	}
	data, err := s.prober.TableData(ctx, plain, table, limit)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return data, nil
}

// DecryptedConnection returns the connection with plaintext secrets, for
// session issuance. The connection must already be Connected (or Connected
// with a warning).
func (s *Service) DecryptedConnection(ctx context.Context, userID, id string) (*domain.Connection, error) {
	conn, err := storage.FindConnection(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if conn.Status != domain.StatusConnected && conn.Status != domain.StatusConnectedWarning {
		return nil, ErrNotConnected
	}
	return s.decryptedCopy(conn)
}

// --- helpers ---

func (s *Service) encryptSecrets(conn *domain.Connection, password, connString string) error {
	if password != "" {
		enc, err := s.crypto.Encrypt(password)
		if err != nil {
			return fmt.Errorf("failed to encrypt credentials: %w", err)
		}
		conn.Password = enc
	}
	if connString != "" {
		enc, err := s.crypto.Encrypt(connString)
		if err != nil {
			return fmt.Errorf("failed to encrypt credentials: %w", err)
		}
		conn.ConnString = enc
	}
	return nil
}

// decryptedCopy returns a copy of conn with secrets decrypted.
func (s *Service) decryptedCopy(conn *domain.Connection) (*domain.Connection, error) {
	plain := *conn
	if conn.Password != "" {
		p, err := s.crypto.Decrypt(conn.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
		}
		plain.Password = p
	}
	if conn.ConnString != "" {
		cs, err := s.crypto.Decrypt(conn.ConnString)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
		}
		plain.ConnString = cs
	}
	return &plain, nil
}

// validateSpec collects missing/invalid fields. secretOptional relaxes the
// password / connection string requirement for updates that keep the
// previous credential.
func validateSpec(spec Spec, secretOptional bool) error {
	fields := []string{}
	if spec.Name == "" {
		fields = append(fields, "name")
	}
	if !spec.Kind.IsValid() {
		fields = append(fields, "kind")
	}
	if !spec.Locality.IsValid() {
		fields = append(fields, "locality")
	}

	switch spec.Locality {
	case domain.LocalityLocal:
		if !core.IsValidHost(spec.Host) {
			fields = append(fields, "host")
		}
		if !core.IsValidPort(spec.Port) {
			fields = append(fields, "port")
		}
		if spec.Username == "" {
			fields = append(fields, "username")
		}
		if spec.Password == "" && !secretOptional {
			fields = append(fields, "password")
		}
	case domain.LocalityExternal:
		if spec.ConnString == "" && !secretOptional {
			fields = append(fields, "connection_string")
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// targetFingerprint digests the non-secret target details for duplicate
// detection. The external connection string participates because it IS the
// target; the local password does not.
func targetFingerprint(spec Spec) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%s|%s", spec.Kind, spec.Locality, spec.Host, spec.Port, spec.Username, spec.ConnString)
	return hex.EncodeToString(h.Sum(nil))
}
