// api/models/connection_models.go
package models

import "time"

// --- Connection Request/Response Structs ---

// ConnectionSpecRequest is the body for creating or updating a connection.
// Password and connection_string are optional at the binding level; the
// registry enforces which is required per locality (and a blank password on
// update means "keep the previous credential").
type ConnectionSpecRequest struct {
	Name             string `json:"name" binding:"required"`
	Kind             string `json:"kind" binding:"required,oneof=postgres mysql clickhouse mongodb"`
	Locality         string `json:"locality" binding:"required,oneof=local external"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	ConnectionString string `json:"connection_string"`
	SSL              bool   `json:"ssl"`
}

// ConnectionResponse is one connection as rendered to clients. Secrets are
// never included.
type ConnectionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Locality  string    `json:"locality"`
	Host      string    `json:"host,omitempty"`
	Port      int       `json:"port,omitempty"`
	Username  string    `json:"username,omitempty"`
	SSL       bool      `json:"ssl"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ListConnectionsResponse is the page shape for GET /connections.
type ListConnectionsResponse struct {
	Connections []ConnectionResponse `json:"connections"`
	TotalPages  int                  `json:"totalPages"`
}

// TransitionResponse is the body for test/connect/disconnect outcomes.
type TransitionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// SchemaResponse is the body for GET /connections/{id}/schema.
type SchemaResponse struct {
	Success      bool     `json:"success"`
	Tables       []string `json:"tables"`
	DatabaseType string   `json:"databaseType"`
	Message      string   `json:"message,omitempty"`
}

// TableDataResponse is the body for GET /connections/{id}/table-data/{name}.
type TableDataResponse struct {
	Success bool             `json:"success"`
	Data    []map[string]any `json:"data"`
	Message string           `json:"message,omitempty"`
}

// SessionTokenResponse is the body returned when a session token is issued.
// The opaque token itself stays server-side; clients key their requests by
// connection id.
type SessionTokenResponse struct {
	Success      bool      `json:"success"`
	ConnectionID string    `json:"connection_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// --- Preference Structs ---

// PreferenceRequest sets the caller's selected database.
type PreferenceRequest struct {
	ConnectionID string `json:"connection_id" binding:"required"`
}

// PreferenceResponse returns the caller's selected database, empty when none
// was ever chosen.
type PreferenceResponse struct {
	ConnectionID string `json:"connection_id"`
}
