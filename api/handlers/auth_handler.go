// api/handlers/auth_handler.go
package handlers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/datalink-labs/datalink-backend/api/models"
	"github.com/datalink-labs/datalink-backend/config"
	"github.com/datalink-labs/datalink-backend/internal/auth"
	"github.com/datalink-labs/datalink-backend/internal/logger"
	"github.com/datalink-labs/datalink-backend/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

// AuthHandler holds dependencies for authentication handlers.
type AuthHandler struct {
	DB  *sql.DB        // Metadata DB connection pool
	Cfg *config.Config // Application configuration
}

// NewAuthHandler creates a new AuthHandler with dependencies.
func NewAuthHandler(db *sql.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		DB:  db,
		Cfg: cfg,
	}
}

// Signup handles user registration requests.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	userID := uuid.New().String()

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Signup binding error: %v", err)
		_ = c.Error(err)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		customLog.Warnf("Failed to hash password during signup for email %s: %v", req.Email, err)
		_ = c.Error(err)
		return
	}

	userID, err = storage.CreateUser(c.Request.Context(), h.DB, userID, req.Username, req.Email, hashedPassword)
	if err != nil {
		customLog.Warnf("Failed to create user %s: %v", req.Email, err)
		_ = c.Error(err) // Attach storage error (e.g., ErrEmailExists)
		return           // Let middleware handle response
	}

	customLog.Printf("Successfully registered user with email %s", req.Email)
	c.JSON(http.StatusCreated, gin.H{"user_id": userID, "message": "User registered successfully"})
}

// Login handles user login requests and issues JWT on success.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Login binding error: %v", err)
		_ = c.Error(err)
		return
	}

	user, err := storage.FindUserByEmail(c.Request.Context(), h.DB, req.Email)
	if err != nil || user == nil {
		customLog.Warnf("Login failed for email %s: %v", req.Email, err)
		_ = c.Error(storage.ErrInvalidCredentials)
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		customLog.Warnf("Login attempt failed for email %s: invalid password", user.Email)
		_ = c.Error(storage.ErrInvalidCredentials)
		return
	}

	tokenString, err := auth.GenerateJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.JWTExpiration)
	if err != nil {
		customLog.Warnf("Failed to generate JWT for user %s: %v", user.ID, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{Message: "Logged in successfully", Token: tokenString})
}
