// api/handlers/preference_handler.go
package handlers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datalink-labs/datalink-backend/api/models"
	"github.com/datalink-labs/datalink-backend/internal/storage"
)

// PreferenceHandler persists per-user UI preferences (currently just the
// selected database), keyed by the authenticated identity so switching users
// never leaks another user's selection.
type PreferenceHandler struct {
	DB *sql.DB
}

// NewPreferenceHandler creates a new PreferenceHandler.
func NewPreferenceHandler(db *sql.DB) *PreferenceHandler {
	return &PreferenceHandler{DB: db}
}

// GetSelectedDatabase handles GET /preferences/database.
func (h *PreferenceHandler) GetSelectedDatabase(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	connectionID, err := storage.GetSelectedConnection(c.Request.Context(), h.DB, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.PreferenceResponse{ConnectionID: connectionID})
}

// SetSelectedDatabase handles PUT /preferences/database.
func (h *PreferenceHandler) SetSelectedDatabase(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	var req models.PreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Preference binding error: %v", err)
		_ = c.Error(err)
		return
	}

	if err := storage.SetSelectedConnection(c.Request.Context(), h.DB, userID, req.ConnectionID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.PreferenceResponse{ConnectionID: req.ConnectionID})
}
