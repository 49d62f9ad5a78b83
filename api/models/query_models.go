// api/models/query_models.go
package models

// --- Query Pipeline Request/Response Structs ---

// AskRequest submits one utterance against a connection's live session.
type AskRequest struct {
	ConnectionID string `json:"connection_id" binding:"required"`
	Message      string `json:"message"`
}

// AskResponse carries the generated SQL (readable form, not the base64 sent
// to execution) and the result rows.
type AskResponse struct {
	Success bool             `json:"success"`
	SQL     string           `json:"sql"`
	Data    []map[string]any `json:"data"`
}

// SummarizeRequest asks for a natural-language summary of previously
// returned rows.
type SummarizeRequest struct {
	ConnectionID string           `json:"connection_id" binding:"required"`
	Data         []map[string]any `json:"data" binding:"required"`
	UserQuestion string           `json:"user_question"`
}

// SummarizeResponse may carry an empty summary: summarization is best-effort
// and degrades rather than fails.
type SummarizeResponse struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
}

// VisualizeRequest asks for a chart over previously returned rows.
type VisualizeRequest struct {
	ConnectionID string           `json:"connection_id" binding:"required"`
	Data         []map[string]any `json:"data" binding:"required"`
	UserQuestion string           `json:"user_question"`
	ChartType    string           `json:"chart_type"`
	XAxis        string           `json:"x_axis"`
	YAxis        string           `json:"y_axis"`
}

// VisualizeResponse carries the rendered chart as base64 PNG.
type VisualizeResponse struct {
	Success    bool   `json:"success"`
	ChartImage string `json:"chart_image"`
}
