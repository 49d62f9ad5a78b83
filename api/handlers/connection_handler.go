// api/handlers/connection_handler.go
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/datalink-labs/datalink-backend/api/models"
	"github.com/datalink-labs/datalink-backend/config"
	"github.com/datalink-labs/datalink-backend/internal/domain"
	"github.com/datalink-labs/datalink-backend/internal/registry"
	"github.com/datalink-labs/datalink-backend/internal/session"
)

// ConnectionHandler holds dependencies for connection registry handlers.
type ConnectionHandler struct {
	Registry *registry.Service
	Tokens   *session.Store
	Cfg      *config.Config
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(reg *registry.Service, tokens *session.Store, cfg *config.Config) *ConnectionHandler {
	return &ConnectionHandler{
		Registry: reg,
		Tokens:   tokens,
		Cfg:      cfg,
	}
}

func toConnectionResponse(conn *domain.Connection) models.ConnectionResponse {
	return models.ConnectionResponse{
		ID:        conn.ID,
		Name:      conn.Name,
		Kind:      string(conn.Kind),
		Locality:  string(conn.Locality),
		Host:      conn.Host,
		Port:      conn.Port,
		Username:  conn.Username,
		SSL:       conn.SSL,
		Status:    string(conn.Status),
		CreatedAt: conn.CreatedAt,
	}
}

func toSpec(req models.ConnectionSpecRequest) registry.Spec {
	return registry.Spec{
		Name:       req.Name,
		Kind:       domain.DatabaseKind(req.Kind),
		Locality:   domain.Locality(req.Locality),
		Host:       req.Host,
		Port:       req.Port,
		Username:   req.Username,
		Password:   req.Password,
		ConnString: req.ConnectionString,
		SSL:        req.SSL,
	}
}

// List handles GET /connections?page&limit.
func (h *ConnectionHandler) List(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	connections, totalPages, err := h.Registry.List(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := models.ListConnectionsResponse{
		Connections: make([]models.ConnectionResponse, 0, len(connections)),
		TotalPages:  totalPages,
	}
	for i := range connections {
		resp.Connections = append(resp.Connections, toConnectionResponse(&connections[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// Create handles POST /connections.
func (h *ConnectionHandler) Create(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	var req models.ConnectionSpecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Create connection binding error: %v", err)
		_ = c.Error(err)
		return
	}

	conn, err := h.Registry.Create(c.Request.Context(), userID, toSpec(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"connection": toConnectionResponse(conn)})
}

// Update handles PUT /connections/:id.
func (h *ConnectionHandler) Update(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	id := c.Param("id")

	var req models.ConnectionSpecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Update connection binding error: %v", err)
		_ = c.Error(err)
		return
	}

	conn, err := h.Registry.Update(c.Request.Context(), userID, id, toSpec(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connection": toConnectionResponse(conn)})
}

// Delete handles DELETE /connections/:id. Idempotent: deleting an unknown
// connection still reports success.
func (h *ConnectionHandler) Delete(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	id := c.Param("id")

	if err := h.Registry.Delete(c.Request.Context(), userID, id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Test handles POST /connections/:id/test.
func (h *ConnectionHandler) Test(c *gin.Context) {
	h.runTransition(c, h.Registry.Test)
}

// Connect handles POST /connections/:id/connect.
func (h *ConnectionHandler) Connect(c *gin.Context) {
	h.runTransition(c, h.Registry.Connect)
}

// Disconnect handles POST /connections/:id/disconnect.
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	h.runTransition(c, h.Registry.Disconnect)
}

// runTransition is the shared body of the three transition endpoints.
func (h *ConnectionHandler) runTransition(c *gin.Context, op func(ctx context.Context, userID, id string) (*registry.Outcome, error)) {
	userID := c.MustGet("userId").(string)
	id := c.Param("id")

	outcome, err := op(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.TransitionResponse{
		Success: true,
		Message: outcome.Message,
		Status:  string(outcome.Status),
	})
}

// Schema handles GET /connections/:id/schema. MongoDB never reaches the
// response: the registry rejects its introspection with ErrDisabledFeature.
func (h *ConnectionHandler) Schema(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	id := c.Param("id")

	conn, err := h.Registry.Get(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	tables, err := h.Registry.Schema(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.SchemaResponse{
		Success:      true,
		Tables:       tables,
		DatabaseType: string(conn.Kind),
	})
}

// TableData handles GET /connections/:id/table-data/:name.
func (h *ConnectionHandler) TableData(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	id := c.Param("id")
	table := c.Param("name")

	data, err := h.Registry.TableData(c.Request.Context(), userID, id, table, h.Cfg.DefaultRowCap)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.TableDataResponse{Success: true, Data: data})
}

// IssueSession handles POST /connections/:id/session: exchanges a connected
// database for a compute session token. Re-issuing overwrites the previous
// token for the connection.
func (h *ConnectionHandler) IssueSession(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	id := c.Param("id")

	conn, err := h.Registry.DecryptedConnection(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	token, err := h.Tokens.Issue(c.Request.Context(), conn)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.SessionTokenResponse{
		Success:      true,
		ConnectionID: token.ConnectionID,
		ExpiresAt:    token.ExpiresAt,
	})
}

// RevokeSession handles DELETE /connections/:id/session. Idempotent.
func (h *ConnectionHandler) RevokeSession(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	id := c.Param("id")

	if err := h.Tokens.Revoke(c.Request.Context(), userID, id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
