// internal/compute/client.go
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/datalink-labs/datalink-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// ErrUnsuccessful signals a 2xx response whose body reported success=false
// without a usable detail string.
var ErrUnsuccessful = errors.New("compute service reported an unsuccessful operation")

// RemoteError carries the status code and detail string of a non-2xx compute
// service response. The pipeline maps the detail onto its closed error set;
// nothing else should pattern-match on it.
type RemoteError struct {
	StatusCode int
	Detail     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("compute service error (status %d): %s", e.StatusCode, e.Detail)
}

// Client talks to the external compute service (session issuance, SQL
// generation/execution, summarization, visualization).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a compute service client with the given base URL and
// per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// --- Request/Response shapes ---

// Credentials is the discrete-field payload for local connections.
type Credentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ConnectRequest is the payload for POST /database/connect.
type ConnectRequest struct {
	ConnectionType         string       `json:"connection_type"` // "local" or "external"
	DatabaseType           string       `json:"database_type"`
	Credentials            *Credentials `json:"credentials,omitempty"`
	ConnectionString       string       `json:"connection_string,omitempty"`
	SessionDurationMinutes int          `json:"session_duration_minutes"`
	StoreSchema            bool         `json:"store_schema"`
}

// ConnectResponse is the body of a successful POST /database/connect.
type ConnectResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

type generateSQLRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type generateSQLResponse struct {
	Success      bool   `json:"success"`
	GeneratedSQL string `json:"generated_sql"`
}

type executeSQLRequest struct {
	SessionID string `json:"session_id"`
	SQLQuery  string `json:"sql_query"` // base64-encoded
}

type executeSQLResponse struct {
	Success bool             `json:"success"`
	Data    []map[string]any `json:"data"`
}

type summarizeRequest struct {
	SessionID    string           `json:"session_id"`
	Data         []map[string]any `json:"data"`
	UserQuestion string           `json:"user_question"`
}

type summarizeResponse struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
}

// VisualizeRequest is the payload for POST /visualize/visualize. ChartType,
// XAxis and YAxis are optional hints; the service picks defaults when empty.
type VisualizeRequest struct {
	SessionID    string           `json:"session_id"`
	Data         []map[string]any `json:"data"`
	UserQuestion string           `json:"user_question"`
	ChartType    string           `json:"chart_type,omitempty"`
	XAxis        string           `json:"x_axis,omitempty"`
	YAxis        string           `json:"y_axis,omitempty"`
}

type visualizeResponse struct {
	ChartImage string `json:"chart_image"` // base64-encoded
}

// errorBody covers the error shapes the compute service emits.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// --- Operations ---

// Connect exchanges database credentials for a session id with a bounded
// lifetime.
func (c *Client) Connect(ctx context.Context, req ConnectRequest) (*ConnectResponse, error) {
	var resp ConnectResponse
	if err := c.post(ctx, "/database/connect", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.SessionID == "" {
		return nil, ErrUnsuccessful
	}
	return &resp, nil
}

// GenerateSQL turns a natural-language query into SQL for the session's
// database.
func (c *Client) GenerateSQL(ctx context.Context, sessionID, query string) (string, error) {
	var resp generateSQLResponse
	if err := c.post(ctx, "/sql/generate-sql", generateSQLRequest{SessionID: sessionID, Query: query}, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.GeneratedSQL == "" {
		return "", ErrUnsuccessful
	}
	return resp.GeneratedSQL, nil
}

// ExecuteSQL runs a base64-encoded SQL statement and returns the result rows.
func (c *Client) ExecuteSQL(ctx context.Context, sessionID, sqlBase64 string) ([]map[string]any, error) {
	var resp executeSQLResponse
	if err := c.post(ctx, "/database/execute-sql", executeSQLRequest{SessionID: sessionID, SQLQuery: sqlBase64}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, ErrUnsuccessful
	}
	return resp.Data, nil
}

// Summarize produces a short natural-language summary of result rows.
func (c *Client) Summarize(ctx context.Context, sessionID string, data []map[string]any, userQuestion string) (string, error) {
	var resp summarizeResponse
	if err := c.post(ctx, "/summarize", summarizeRequest{SessionID: sessionID, Data: data, UserQuestion: userQuestion}, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", ErrUnsuccessful
	}
	return resp.Summary, nil
}

// Visualize renders a chart for result rows and returns the base64 image
// payload.
func (c *Client) Visualize(ctx context.Context, req VisualizeRequest) (string, error) {
	var resp visualizeResponse
	if err := c.post(ctx, "/visualize/visualize", req, &resp); err != nil {
		return "", err
	}
	if resp.ChartImage == "" {
		return "", ErrUnsuccessful
	}
	return resp.ChartImage, nil
}

// post sends a JSON body and decodes a JSON response. Non-2xx statuses are
// returned as *RemoteError with whatever detail the body carried.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode compute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build compute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		customLog.Warnf("Compute: request to %s failed: %v", path, err)
		return fmt.Errorf("compute service unreachable: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read compute response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		detail := eb.Detail
		if detail == "" {
			detail = eb.Message
		}
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		customLog.Warnf("Compute: %s returned status %d: %s", path, res.StatusCode, detail)
		return &RemoteError{StatusCode: res.StatusCode, Detail: detail}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode compute response: %w", err)
	}
	return nil
}
