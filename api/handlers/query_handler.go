// api/handlers/query_handler.go
package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datalink-labs/datalink-backend/api/models"
	"github.com/datalink-labs/datalink-backend/internal/domain"
	"github.com/datalink-labs/datalink-backend/internal/pipeline"
	"github.com/datalink-labs/datalink-backend/internal/session"
)

// QueryHandler holds dependencies for query pipeline handlers.
type QueryHandler struct {
	Pipeline *pipeline.Pipeline
	Tokens   *session.Store
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(p *pipeline.Pipeline, tokens *session.Store) *QueryHandler {
	return &QueryHandler{
		Pipeline: p,
		Tokens:   tokens,
	}
}

// lookupToken resolves the live token for the connection, or nil when absent.
// The pipeline itself turns a nil token into its SessionRequired code, so the
// caller sees a stable code either way.
func (h *QueryHandler) lookupToken(c *gin.Context, connectionID string) (*domain.SessionToken, error) {
	userID := c.MustGet("userId").(string)
	token, err := h.Tokens.Lookup(c.Request.Context(), userID, connectionID)
	if err != nil {
		if errors.Is(err, session.ErrNoToken) {
			return nil, nil
		}
		return nil, err
	}
	return token, nil
}

// Ask handles POST /query/ask: utterance in, SQL + rows out.
func (h *QueryHandler) Ask(c *gin.Context) {
	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Ask binding error: %v", err)
		_ = c.Error(err)
		return
	}

	token, err := h.lookupToken(c, req.ConnectionID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	turn, err := h.Pipeline.Ask(c.Request.Context(), req.Message, token)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.AskResponse{
		Success: true,
		SQL:     turn.SQL,
		Data:    turn.Rows,
	})
}

// Summarize handles POST /query/summarize. Best-effort: an upstream failure
// yields an empty summary, not an error.
func (h *QueryHandler) Summarize(c *gin.Context) {
	var req models.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Summarize binding error: %v", err)
		_ = c.Error(err)
		return
	}

	token, err := h.lookupToken(c, req.ConnectionID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	summary := h.Pipeline.Summarize(c.Request.Context(), req.Data, req.UserQuestion, token)
	c.JSON(http.StatusOK, models.SummarizeResponse{
		Success: summary != "",
		Summary: summary,
	})
}

// Visualize handles POST /query/visualize.
func (h *QueryHandler) Visualize(c *gin.Context) {
	var req models.VisualizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Visualize binding error: %v", err)
		_ = c.Error(err)
		return
	}

	token, err := h.lookupToken(c, req.ConnectionID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	image, err := h.Pipeline.Visualize(c.Request.Context(), pipeline.VisualizeSpec{
		Rows:      req.Data,
		Question:  req.UserQuestion,
		ChartType: req.ChartType,
		XAxis:     req.XAxis,
		YAxis:     req.YAxis,
	}, token)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.VisualizeResponse{
		Success:    true,
		ChartImage: base64.StdEncoding.EncodeToString(image),
	})
}
