// api/middleware/error_handler.go
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10" // Import validator for binding errors

	"github.com/datalink-labs/datalink-backend/internal/auth"
	"github.com/datalink-labs/datalink-backend/internal/compute"
	"github.com/datalink-labs/datalink-backend/internal/pipeline"
	"github.com/datalink-labs/datalink-backend/internal/registry"
	"github.com/datalink-labs/datalink-backend/internal/session"
	"github.com/datalink-labs/datalink-backend/internal/storage"
)

// ErrorHandler creates a Gin middleware for centralized error handling.
// Handlers attach errors with c.Error; this maps the last one onto an HTTP
// status, a stable machine-readable code, and a user-safe message.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request using subsequent handlers
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		// Handlers may attach several errors; the last one decides the response.
		err := c.Errors.Last().Err

		// A handler may have already written a response body.
		if c.Writer.Written() {
			return
		}

		customLog.Printf("[ErrorHandler] Detected error: %v | Type: %T", err, err)

		var statusCode int
		var code string
		var userMessage string

		var validationErr *registry.ValidationError
		var transportErr *registry.TransportError
		var pipelineErr *pipeline.Error
		var remoteErr *compute.RemoteError
		var bindingErrs validator.ValidationErrors

		switch {
		case errors.Is(err, storage.ErrConnectionNotFound) ||
			errors.Is(err, storage.ErrUserNotFound):
			statusCode = http.StatusNotFound
			code = "not_found"
			userMessage = err.Error()

		case errors.Is(err, storage.ErrConnectionExists) ||
			errors.Is(err, storage.ErrEmailExists):
			statusCode = http.StatusConflict
			code = "conflict"
			userMessage = err.Error()

		case errors.Is(err, registry.ErrDisabledFeature):
			statusCode = http.StatusForbidden
			code = "disabled_feature"
			userMessage = err.Error()

		case errors.Is(err, registry.ErrNotConnected):
			statusCode = http.StatusConflict
			code = "not_connected"
			userMessage = err.Error()

		case errors.Is(err, session.ErrNoToken):
			statusCode = http.StatusUnauthorized
			code = string(pipeline.KindSessionRequired)
			userMessage = "No live session for this connection. Connect first."

		case errors.Is(err, pipeline.ErrEmptyUtterance):
			statusCode = http.StatusBadRequest
			code = "validation_error"
			userMessage = err.Error()

		case errors.As(err, &validationErr):
			statusCode = http.StatusBadRequest
			code = "validation_error"
			userMessage = validationErr.Error()

		case errors.As(err, &pipelineErr):
			// The closed pipeline taxonomy. Diagnostic strings stay in logs.
			code = string(pipelineErr.Kind)
			switch pipelineErr.Kind {
			case pipeline.KindSessionRequired, pipeline.KindSessionExpiredOrMissing:
				statusCode = http.StatusUnauthorized
				userMessage = "Session is missing or expired. Connect the database again."
			case pipeline.KindInternalServiceError:
				statusCode = http.StatusBadGateway
				userMessage = "The query service reported an internal error."
			default:
				statusCode = http.StatusBadGateway
				userMessage = "The query could not be completed."
			}

		case errors.As(err, &transportErr):
			statusCode = http.StatusBadGateway
			code = "transport_error"
			userMessage = transportErr.Error()

		case errors.As(err, &remoteErr), errors.Is(err, compute.ErrUnsuccessful):
			// Session issuance talking to the compute service.
			statusCode = http.StatusBadGateway
			code = "compute_error"
			userMessage = "The compute service rejected the request."

		case errors.Is(err, storage.ErrInvalidCredentials):
			statusCode = http.StatusUnauthorized
			code = "invalid_credentials"
			userMessage = err.Error()

		case errors.Is(err, auth.ErrTokenExpired):
			statusCode = http.StatusUnauthorized
			code = "token_expired"
			userMessage = "Authentication token has expired."

		case errors.Is(err, auth.ErrTokenMalformed) ||
			errors.Is(err, auth.ErrTokenInvalid) ||
			errors.Is(err, auth.ErrTokenClaimsInvalid) ||
			errors.Is(err, auth.ErrUnexpectedSigningMethod):
			statusCode = http.StatusUnauthorized
			code = "token_invalid"
			userMessage = "Invalid or malformed authentication token."

		case errors.As(err, &bindingErrs):
			statusCode = http.StatusBadRequest
			code = "validation_error"
			userMessage = "Validation failed. Please check your input."
			for _, fe := range bindingErrs {
				customLog.Printf("Validation Error: Field %s failed on %s", fe.Field(), fe.Tag())
			}

		default:
			statusCode = http.StatusInternalServerError
			code = "internal_error"
			userMessage = "An unexpected error occurred."
		}

		c.JSON(statusCode, gin.H{"error": userMessage, "code": code})
	}
}
