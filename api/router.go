// api/router.go
package api

import (
	"database/sql"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/datalink-labs/datalink-backend/api/handlers"
	"github.com/datalink-labs/datalink-backend/api/middleware"
	"github.com/datalink-labs/datalink-backend/config"
	"github.com/datalink-labs/datalink-backend/internal/pipeline"
	"github.com/datalink-labs/datalink-backend/internal/registry"
	"github.com/datalink-labs/datalink-backend/internal/session"
)

// SetupRouter initializes the Gin router and sets up all routes.
func SetupRouter(metaDB *sql.DB, cfg *config.Config, reg *registry.Service, tokens *session.Store, pipe *pipeline.Pipeline) *gin.Engine {
	router := gin.Default() // Includes Logger and Recovery

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	// Setting up a rate-limiter
	ratelimiter := middleware.NewRateLimiter()
	router.Use(middleware.RateLimitMiddleware(ratelimiter))
	// It should run after basic middleware like Logger/Recovery
	// but before the routing happens, so it wraps the handlers.
	router.Use(middleware.ErrorHandler())

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(metaDB, cfg)
	connHandler := handlers.NewConnectionHandler(reg, tokens, cfg)
	queryHandler := handlers.NewQueryHandler(pipe, tokens)
	prefHandler := handlers.NewPreferenceHandler(metaDB)

	// --- Public Routes ---
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/signup", authHandler.Signup)
		authRoutes.POST("/login", authHandler.Login)
	}

	// --- Protected Routes ---
	apiRoutes := router.Group("/api/v1")
	apiRoutes.Use(middleware.AuthMiddleware(cfg))
	{
		apiRoutes.GET("/connections", connHandler.List)
		apiRoutes.POST("/connections", connHandler.Create)
		apiRoutes.PUT("/connections/:id", connHandler.Update)
		apiRoutes.DELETE("/connections/:id", connHandler.Delete)

		apiRoutes.POST("/connections/:id/test", connHandler.Test)
		apiRoutes.POST("/connections/:id/connect", connHandler.Connect)
		apiRoutes.POST("/connections/:id/disconnect", connHandler.Disconnect)

		apiRoutes.GET("/connections/:id/schema", connHandler.Schema)
		apiRoutes.GET("/connections/:id/table-data/:name", connHandler.TableData)

		apiRoutes.POST("/connections/:id/session", connHandler.IssueSession)
		apiRoutes.DELETE("/connections/:id/session", connHandler.RevokeSession)

		apiRoutes.POST("/query/ask", queryHandler.Ask)
		apiRoutes.POST("/query/summarize", queryHandler.Summarize)
		apiRoutes.POST("/query/visualize", queryHandler.Visualize)

		apiRoutes.GET("/preferences/database", prefHandler.GetSelectedDatabase)
		apiRoutes.PUT("/preferences/database", prefHandler.SetSelectedDatabase)
	}

	return router
}
