// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/datalink-labs/datalink-backend/internal/compute"
	"github.com/datalink-labs/datalink-backend/internal/core"
	"github.com/datalink-labs/datalink-backend/internal/domain"
	"github.com/datalink-labs/datalink-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// ErrEmptyUtterance is the local validation failure for a blank question. It
// is detected before any network call is made.
var ErrEmptyUtterance = errors.New("utterance must not be empty")

// ErrorKind is the closed set of pipeline failure codes surfaced to callers.
// Remote free text never leaks past this boundary except as the diagnostic
// string attached for logs.
type ErrorKind string

const (
	KindSessionRequired         ErrorKind = "session_required"
	KindSessionExpiredOrMissing ErrorKind = "session_expired_or_missing"
	KindInternalServiceError    ErrorKind = "internal_service_error"
	KindUnknownPipelineError    ErrorKind = "unknown_pipeline_error"
)

// Error is a pipeline failure tagged with one of the four kinds.
type Error struct {
	Kind       ErrorKind
	Diagnostic string // for logs only; never rendered to users
}

func (e *Error) Error() string {
	if e.Diagnostic == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Diagnostic)
}

// Runner is the slice of the compute client the pipeline needs.
type Runner interface {
	GenerateSQL(ctx context.Context, sessionID, query string) (string, error)
	ExecuteSQL(ctx context.Context, sessionID, sqlBase64 string) ([]map[string]any, error)
	Summarize(ctx context.Context, sessionID string, data []map[string]any, userQuestion string) (string, error)
	Visualize(ctx context.Context, req compute.VisualizeRequest) (string, error)
}

// Pipeline turns a user utterance into SQL and results via the compute
// service. It consumes session tokens through their value, never by reaching
// into the token store's storage.
type Pipeline struct {
	compute Runner
	rowCap  int
}

// NewPipeline creates a query pipeline with the given default row cap.
func NewPipeline(runner Runner, rowCap int) *Pipeline {
	return &Pipeline{compute: runner, rowCap: rowCap}
}

// VisualizeSpec is a structured chart request: the rows to draw, the user's
// chart intent, and optional kind/axis choices.
type VisualizeSpec struct {
	Rows      []map[string]any
	Question  string
	ChartType string
	XAxis     string
	YAxis     string
}

// Ask generates SQL for the utterance, executes it, and returns the turn.
// The default row cap is appended unless the utterance already names a limit
// (whole-word match, see core.HasExplicitLimit). The returned ChatTurn
// carries the SQL as generated, not the base64 form sent to execution.
func (p *Pipeline) Ask(ctx context.Context, utterance string, token *domain.SessionToken) (*domain.ChatTurn, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, ErrEmptyUtterance
	}
	if token == nil || token.Token == "" {
		return nil, &Error{Kind: KindSessionRequired}
	}

	augmented := utterance
	if !core.HasExplicitLimit(utterance) {
		augmented = fmt.Sprintf("%s limit %d", utterance, p.rowCap)
	}

	sqlText, err := p.compute.GenerateSQL(ctx, token.Token, augmented)
	if err != nil {
		return nil, p.classify(err)
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(sqlText))
	rows, err := p.compute.ExecuteSQL(ctx, token.Token, encoded)
	if err != nil {
		return nil, p.classify(err)
	}

	return &domain.ChatTurn{
		Utterance: utterance,
		SQL:       sqlText,
		Rows:      rows,
	}, nil
}

// Summarize produces a natural-language summary of result rows. It is an
// optional enhancement: any failure degrades to an empty summary instead of
// an error, so a failed summary never blocks the results it describes.
func (p *Pipeline) Summarize(ctx context.Context, rows []map[string]any, question string, token *domain.SessionToken) string {
	if token == nil || token.Token == "" {
		return ""
	}
	summary, err := p.compute.Summarize(ctx, token.Token, rows, question)
	if err != nil {
		customLog.Warnf("Pipeline: summarize degraded to empty: %v", err)
		return ""
	}
	return summary
}

// Visualize renders a chart for result rows. Failure is reported, but it
// does not invalidate the rows, so callers may retry freely.
func (p *Pipeline) Visualize(ctx context.Context, spec VisualizeSpec, token *domain.SessionToken) ([]byte, error) {
	if token == nil || token.Token == "" {
		return nil, &Error{Kind: KindSessionRequired}
	}
	encoded, err := p.compute.Visualize(ctx, compute.VisualizeRequest{
		SessionID:    token.Token,
		Data:         spec.Rows,
		UserQuestion: spec.Question,
		ChartType:    spec.ChartType,
		XAxis:        spec.XAxis,
		YAxis:        spec.YAxis,
	})
	if err != nil {
		return nil, p.classify(err)
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &Error{Kind: KindUnknownPipelineError, Diagnostic: "chart image was not valid base64"}
	}
	return image, nil
}

// classify folds every remote failure into the closed error set. The detail
// strings are the compute service's documented error contract.
func (p *Pipeline) classify(err error) error {
	var remote *compute.RemoteError
	if errors.As(err, &remote) {
		switch remote.Detail {
		case "Session not found", "Session expired":
			return &Error{Kind: KindSessionExpiredOrMissing, Diagnostic: remote.Detail}
		case "Internal server error":
			return &Error{Kind: KindInternalServiceError, Diagnostic: remote.Detail}
		default:
			return &Error{Kind: KindUnknownPipelineError, Diagnostic: remote.Detail}
		}
	}
	return &Error{Kind: KindUnknownPipelineError, Diagnostic: err.Error()}
}
