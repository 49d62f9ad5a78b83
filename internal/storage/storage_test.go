// internal/storage/storage_test.go
package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datalink-labs/datalink-backend/config"
	"github.com/datalink-labs/datalink-backend/internal/domain"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		MetadataDbDir:  t.TempDir(),
		MetadataDbFile: "test_metadata.db",
	}
	db, err := ConnectMetadataDB(cfg)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedUser inserts a user row so connection inserts satisfy the foreign key.
func seedUser(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	if _, err := CreateUser(context.Background(), db, id, "user-"+id, id+"@example.com", "hash"); err != nil {
		t.Fatalf("Failed to seed user %s: %v", id, err)
	}
}

func sampleConnection(id, userID, name string) *domain.Connection {
	return &domain.Connection{
		ID:          id,
		UserID:      userID,
		Name:        name,
		Kind:        domain.KindPostgres,
		Locality:    domain.LocalityLocal,
		Host:        "db.internal",
		Port:        5432,
		Username:    "reader",
		Password:    "ciphertext",
		SSL:         true,
		Status:      domain.StatusDisconnected,
		Fingerprint: "fp-" + id,
	}
}

func TestCreateAndFindUser(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()

	id, err := CreateUser(ctx, db, "user-1", "alice", "alice@example.com", "hash")
	assert.NoError(err)
	assert.Equal("user-1", id)

	user, err := FindUserByEmail(ctx, db, "alice@example.com")
	assert.NoError(err)
	assert.Equal("alice", user.Username)

	_, err = FindUserByEmail(ctx, db, "nobody@example.com")
	assert.ErrorIs(err, ErrUserNotFound)

	_, err = CreateUser(ctx, db, "user-2", "alice2", "alice@example.com", "hash")
	assert.ErrorIs(err, ErrEmailExists)
}

func TestConnectionNameUniquePerUser(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()
	seedUser(t, db, "user-1")
	seedUser(t, db, "user-2")

	assert.NoError(InsertConnection(ctx, db, sampleConnection("c1", "user-1", "orders")))

	dup := sampleConnection("c2", "user-1", "orders")
	assert.ErrorIs(InsertConnection(ctx, db, dup), ErrConnectionExists)

	// Same name under a different user is allowed.
	assert.NoError(InsertConnection(ctx, db, sampleConnection("c3", "user-2", "orders")))
}

func TestInsertConnectionUnknownUserIsNotAConflict(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()

	// A foreign key violation must not masquerade as a name conflict.
	err := InsertConnection(ctx, db, sampleConnection("c1", "no-such-user", "orders"))
	assert.Error(err)
	assert.NotErrorIs(err, ErrConnectionExists)
}

func TestFindConnectionScopedToUser(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()
	seedUser(t, db, "user-1")

	assert.NoError(InsertConnection(ctx, db, sampleConnection("c1", "user-1", "orders")))

	conn, err := FindConnection(ctx, db, "user-1", "c1")
	assert.NoError(err)
	assert.Equal("orders", conn.Name)
	assert.Equal(domain.StatusDisconnected, conn.Status)

	_, err = FindConnection(ctx, db, "user-2", "c1")
	assert.ErrorIs(err, ErrConnectionNotFound)
}

func TestUpdateConnectionStatusRoundTrip(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()
	seedUser(t, db, "user-1")

	assert.NoError(InsertConnection(ctx, db, sampleConnection("c1", "user-1", "orders")))
	assert.NoError(UpdateConnectionStatus(ctx, db, "user-1", "c1", domain.StatusConnecting))

	conn, err := FindConnection(ctx, db, "user-1", "c1")
	assert.NoError(err)
	assert.Equal(domain.StatusConnecting, conn.Status)

	// Status writes for another user's row hit nothing.
	assert.ErrorIs(UpdateConnectionStatus(ctx, db, "user-2", "c1", domain.StatusConnected), ErrConnectionNotFound)
}

func TestFindConnectionByFingerprint(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()
	seedUser(t, db, "user-1")

	assert.NoError(InsertConnection(ctx, db, sampleConnection("c1", "user-1", "orders")))

	conn, err := FindConnectionByFingerprint(ctx, db, "user-1", "fp-c1")
	assert.NoError(err)
	assert.Equal("c1", conn.ID)

	_, err = FindConnectionByFingerprint(ctx, db, "user-1", "fp-none")
	assert.ErrorIs(err, ErrConnectionNotFound)

	// Fingerprints are scoped per user.
	_, err = FindConnectionByFingerprint(ctx, db, "user-2", "fp-c1")
	assert.ErrorIs(err, ErrConnectionNotFound)
}

func TestDeleteConnectionReportsRowsAffected(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()
	seedUser(t, db, "user-1")

	assert.NoError(InsertConnection(ctx, db, sampleConnection("c1", "user-1", "orders")))

	affected, err := DeleteConnection(ctx, db, "user-1", "c1")
	assert.NoError(err)
	assert.Equal(int64(1), affected)

	affected, err = DeleteConnection(ctx, db, "user-1", "c1")
	assert.NoError(err)
	assert.Equal(int64(0), affected)
}

func TestUpsertTokenLastWriteWins(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()

	first := &domain.SessionToken{
		ConnectionID: "c1",
		UserID:       "user-1",
		Token:        "sess-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	assert.NoError(UpsertToken(ctx, db, first))

	second := &domain.SessionToken{
		ConnectionID: "c1",
		UserID:       "user-1",
		Token:        "sess-2",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
	}
	assert.NoError(UpsertToken(ctx, db, second))

	got, err := FindToken(ctx, db, "user-1", "c1")
	assert.NoError(err)
	assert.Equal("sess-2", got.Token)
}

func TestFindTokenReturnsStoredExpiry(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()

	expires := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	assert.NoError(UpsertToken(ctx, db, &domain.SessionToken{
		ConnectionID: "c1",
		UserID:       "user-1",
		Token:        "sess-1",
		ExpiresAt:    expires,
	}))

	got, err := FindToken(ctx, db, "user-1", "c1")
	assert.NoError(err)
	assert.True(got.ExpiresAt.Equal(expires), "expiry should survive the round trip at second precision")

	_, err = FindToken(ctx, db, "user-2", "c1")
	assert.ErrorIs(err, ErrTokenNotFound)
}

func TestDeleteExpiredTokensLeavesLiveOnes(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()

	now := time.Now()
	assert.NoError(UpsertToken(ctx, db, &domain.SessionToken{
		ConnectionID: "dead", UserID: "user-1", Token: "sess-dead", ExpiresAt: now.Add(-time.Minute),
	}))
	assert.NoError(UpsertToken(ctx, db, &domain.SessionToken{
		ConnectionID: "live", UserID: "user-1", Token: "sess-live", ExpiresAt: now.Add(time.Hour),
	}))

	removed, err := DeleteExpiredTokens(ctx, db, now)
	assert.NoError(err)
	assert.Equal(int64(1), removed)

	_, err = FindToken(ctx, db, "user-1", "dead")
	assert.ErrorIs(err, ErrTokenNotFound)
	_, err = FindToken(ctx, db, "user-1", "live")
	assert.NoError(err)
}

func TestSelectedConnectionPreference(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	ctx := context.Background()
	seedUser(t, db, "user-1")

	// Unset reads back as empty, not as an error.
	selected, err := GetSelectedConnection(ctx, db, "user-1")
	assert.NoError(err)
	assert.Equal("", selected)

	assert.NoError(SetSelectedConnection(ctx, db, "user-1", "c1"))
	assert.NoError(SetSelectedConnection(ctx, db, "user-1", "c2"))

	selected, err = GetSelectedConnection(ctx, db, "user-1")
	assert.NoError(err)
	assert.Equal("c2", selected)
}
