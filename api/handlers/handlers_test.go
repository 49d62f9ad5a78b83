// api/handlers/handlers_test.go
//
// Shared harness for the handler integration tests: a real router over a
// temporary metadata database, a scriptable fake compute service, and a
// scriptable fake prober so no real database is dialed.
package handlers_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datalink-labs/datalink-backend/api"
	"github.com/datalink-labs/datalink-backend/api/models"
	"github.com/datalink-labs/datalink-backend/config"
	"github.com/datalink-labs/datalink-backend/internal/compute"
	"github.com/datalink-labs/datalink-backend/internal/crypto"
	"github.com/datalink-labs/datalink-backend/internal/domain"
	"github.com/datalink-labs/datalink-backend/internal/pipeline"
	"github.com/datalink-labs/datalink-backend/internal/probe"
	"github.com/datalink-labs/datalink-backend/internal/registry"
	"github.com/datalink-labs/datalink-backend/internal/session"
	"github.com/datalink-labs/datalink-backend/internal/storage"
)

const (
	testJWTSecret     = "test_secret_key_for_integration_tests_1234567890"
	testEncryptionKey = "test_encryption_key_32_bytes_long"
)

// fakeCompute is an httptest stand-in for the external compute service. All
// fields are scriptable per test.
type fakeCompute struct {
	mu sync.Mutex

	sessionID    string
	generatedSQL string
	rows         []map[string]any
	summary      string
	chartImage   string

	// When set, execute-sql answers with this status and detail instead.
	executeStatus int
	executeDetail string

	lastGenerateQuery string
	lastExecuteSQL    string
}

func (f *fakeCompute) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/database/connect", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"session_id": f.sessionID,
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/sql/generate-sql", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.lastGenerateQuery, _ = req["query"].(string)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"generated_sql": f.generatedSQL,
		})
	})
	mux.HandleFunc("/database/execute-sql", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.lastExecuteSQL, _ = req["sql_query"].(string)
		if f.executeStatus != 0 {
			writeJSON(w, f.executeStatus, map[string]any{"detail": f.executeDetail})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    f.rows,
		})
	})
	mux.HandleFunc("/summarize", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"summary": f.summary,
		})
	})
	mux.HandleFunc("/visualize/visualize", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"chart_image": f.chartImage,
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// stubProber answers probes without dialing anything.
type stubProber struct {
	mu     sync.Mutex
	result probe.Result
	err    error
	tables []string
	rows   []map[string]any
}

func (s *stubProber) set(result probe.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
	s.err = err
}

func (s *stubProber) Probe(_ context.Context, _ *domain.Connection) (probe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

func (s *stubProber) Schema(_ context.Context, _ *domain.Connection) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables, s.err
}

func (s *stubProber) TableData(_ context.Context, _ *domain.Connection, _ string, _ int) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.err
}

type testEnv struct {
	server  *httptest.Server
	db      *sql.DB
	compute *fakeCompute
	prober  *stubProber
}

// setupTestServer wires the full stack against a temp database and the fake
// compute backend.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := &fakeCompute{
		sessionID:    "sess-integration",
		generatedSQL: "SELECT * FROM orders LIMIT 500",
		rows:         []map[string]any{{"id": float64(1)}},
		summary:      "one row",
	}
	computeServer := httptest.NewServer(fake.handler())
	t.Cleanup(computeServer.Close)

	cfg := &config.Config{
		ServerPort:            ":0",
		JWTSecret:             testJWTSecret,
		JWTExpiration:         5 * time.Minute,
		MetadataDbDir:         t.TempDir(),
		MetadataDbFile:        "test_metadata.db",
		EncryptionKey:         testEncryptionKey,
		ComputeServiceURL:     computeServer.URL,
		ComputeRequestTimeout: 5 * time.Second,
		SessionDuration:       30 * time.Minute,
		SweepInterval:         time.Second,
		ProbeTimeout:          time.Second,
		DefaultRowCap:         500,
	}

	db, err := storage.ConnectMetadataDB(cfg)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	enc, err := crypto.NewEncryptionService(cfg.EncryptionKey)
	if err != nil {
		t.Fatalf("Failed to create encryption service: %v", err)
	}

	computeClient := compute.NewClient(cfg.ComputeServiceURL, cfg.ComputeRequestTimeout)
	tokens := session.NewStore(db, computeClient, cfg.SessionDuration, cfg.SweepInterval)
	prober := &stubProber{result: probe.Result{Message: "connection successful"}}
	reg := registry.NewService(db, enc, tokens, prober, cfg.EnableMongoDB)
	pipe := pipeline.NewPipeline(computeClient, cfg.DefaultRowCap)

	server := httptest.NewServer(api.SetupRouter(db, cfg, reg, tokens, pipe))
	t.Cleanup(server.Close)

	return &testEnv{server: server, db: db, compute: fake, prober: prober}
}

// signupAndLogin registers a fresh user and returns a bearer token.
func (env *testEnv) signupAndLogin(t *testing.T, email string) string {
	t.Helper()

	signupBody, _ := json.Marshal(models.SignupRequest{
		Username: "integration-user",
		Email:    email,
		Password: "StrongPassword123!",
	})
	res, err := http.Post(env.server.URL+"/auth/signup", "application/json", bytes.NewReader(signupBody))
	if err != nil {
		t.Fatalf("Signup request failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("Signup returned status %d", res.StatusCode)
	}

	loginBody, _ := json.Marshal(models.LoginRequest{Email: email, Password: "StrongPassword123!"})
	res, err = http.Post(env.server.URL+"/auth/login", "application/json", bytes.NewReader(loginBody))
	if err != nil {
		t.Fatalf("Login request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Login returned status %d", res.StatusCode)
	}

	var loginRes models.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&loginRes); err != nil {
		t.Fatalf("Failed to decode login response: %v", err)
	}
	return loginRes.Token
}

// doJSON performs an authenticated JSON request and decodes the response body
// into out (when out is non-nil).
func (env *testEnv) doJSON(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, path, err)
	}
	defer res.Body.Close()

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("Failed to decode response for %s %s: %v", method, path, err)
		}
	}
	return res.StatusCode
}

// createConnection registers a local postgres connection and returns its id.
func (env *testEnv) createConnection(t *testing.T, token, name string, port int) string {
	t.Helper()

	var created struct {
		Connection models.ConnectionResponse `json:"connection"`
	}
	status := env.doJSON(t, http.MethodPost, "/api/v1/connections", token, models.ConnectionSpecRequest{
		Name:     name,
		Kind:     "postgres",
		Locality: "local",
		Host:     "db.internal",
		Port:     port,
		Username: "reader",
		Password: "secret-password",
		SSL:      true,
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("Create connection returned status %d", status)
	}
	return created.Connection.ID
}
