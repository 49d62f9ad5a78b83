// internal/domain/models.go
package domain

import "time"

// User defines the structure for user data in the DB
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// DatabaseKind enumerates the database engines a connection may target.
type DatabaseKind string

const (
	KindPostgres   DatabaseKind = "postgres"
	KindMySQL      DatabaseKind = "mysql"
	KindClickHouse DatabaseKind = "clickhouse"
	KindMongoDB    DatabaseKind = "mongodb"
)

// IsValid reports whether k is one of the supported kinds.
func (k DatabaseKind) IsValid() bool {
	switch k {
	case KindPostgres, KindMySQL, KindClickHouse, KindMongoDB:
		return true
	}
	return false
}

// Locality says whether a connection is described by discrete host/port
// credential fields (local) or by a single opaque connection string (external).
type Locality string

const (
	LocalityLocal    Locality = "local"
	LocalityExternal Locality = "external"
)

// IsValid reports whether l is a known locality.
func (l Locality) IsValid() bool {
	return l == LocalityLocal || l == LocalityExternal
}

// ConnectionStatus is the closed set of connectivity states a connection can
// be in. Exactly one holds at any time; the transient states (Connecting,
// Testing, Disconnecting) must never survive a failed transition.
type ConnectionStatus string

const (
	StatusDisconnected     ConnectionStatus = "disconnected"
	StatusConnecting       ConnectionStatus = "connecting"
	StatusConnected        ConnectionStatus = "connected"
	StatusConnectedWarning ConnectionStatus = "connected_warning"
	StatusTesting          ConnectionStatus = "testing"
	StatusDisconnecting    ConnectionStatus = "disconnecting"
)

// IsValid reports whether s is one of the six enumerated statuses.
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected,
		StatusConnectedWarning, StatusTesting, StatusDisconnecting:
		return true
	}
	return false
}

// IsTransient reports whether s is a mid-transition status.
func (s ConnectionStatus) IsTransient() bool {
	return s == StatusConnecting || s == StatusTesting || s == StatusDisconnecting
}

// Connection is a registered, named reference to a target database.
// Secrets (Password for local, ConnString for external) are stored encrypted
// and are only decrypted on the way into a probe or a session issuance.
type Connection struct {
	ID       string
	UserID   string
	Name     string
	Kind     DatabaseKind
	Locality Locality

	// Local connections.
	Host     string
	Port     int
	Username string
	Password string // encrypted at rest

	// External connections.
	ConnString string // encrypted at rest

	SSL    bool
	Status ConnectionStatus

	// Fingerprint is a deterministic digest of the target details, used for
	// duplicate detection since the secret columns are not comparable.
	Fingerprint string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionToken is a time-bounded credential issued by the compute service for
// one connection. At most one live token exists per connection id.
type SessionToken struct {
	ConnectionID string
	UserID       string
	Token        string
	ExpiresAt    time.Time
}

// Expired reports whether the token is past its expiry at the given instant.
func (t SessionToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ChatTurn is one request/response cycle of the query pipeline. It is not
// persisted; the summary and chart fields are filled in lazily by the
// optional enrichment calls.
type ChatTurn struct {
	Utterance string
	SQL       string
	Rows      []map[string]any

	Summary    string
	ChartImage []byte
}
