// api/handlers/auth_handler_integration_test.go
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datalink-labs/datalink-backend/api/models"
	"github.com/datalink-labs/datalink-backend/internal/auth"
	"github.com/datalink-labs/datalink-backend/internal/storage"
)

// TestAuthEndpoints performs integration tests on /auth/signup and /auth/login.
func TestAuthEndpoints(t *testing.T) {
	env := setupTestServer(t)
	assert := assert.New(t)

	testEmail := "test.user." + strconv.FormatInt(time.Now().UnixNano(), 10) + "@integration.com" // Unique email per run
	testPassword := "StrongPassword123!"

	// --- Test Signup ---
	t.Run("Signup Success", func(t *testing.T) {
		signupReqBody := models.SignupRequest{Username: "testuser", Email: testEmail, Password: testPassword}
		bodyBytes, _ := json.Marshal(signupReqBody)

		res, err := http.Post(env.server.URL+"/auth/signup", "application/json", bytes.NewReader(bodyBytes))
		assert.NoError(err)
		defer res.Body.Close()

		assert.Equal(http.StatusCreated, res.StatusCode, "Expected status 201 Created")

		var resBody map[string]string
		err = json.NewDecoder(res.Body).Decode(&resBody)
		assert.NoError(err, "Failed to decode signup response body")
		assert.Equal("User registered successfully", resBody["message"])

		// Verify user created in DB (Direct DB check)
		user, err := storage.FindUserByEmail(context.Background(), env.db, testEmail)
		assert.NoError(err, "Finding user after signup should not fail")
		assert.NotNil(user, "User should exist in DB after signup")
		if user != nil {
			assert.Equal(testEmail, user.Email)
			assert.True(auth.CheckPasswordHash(testPassword, user.PasswordHash), "Stored password hash should match")
		}
	})

	t.Run("Signup Conflict (Duplicate Email)", func(t *testing.T) {
		// Assumes the previous test ran successfully and created the user
		signupReqBody := models.SignupRequest{Username: "testuser2", Email: testEmail, Password: "anotherPassword1"}
		bodyBytes, _ := json.Marshal(signupReqBody)

		res, err := http.Post(env.server.URL+"/auth/signup", "application/json", bytes.NewReader(bodyBytes))
		assert.NoError(err)
		defer res.Body.Close()
		assert.Equal(http.StatusConflict, res.StatusCode, "Expected status 409 Conflict")
	})

	t.Run("Signup Bad Request (Invalid Email Format)", func(t *testing.T) {
		signupReqBody := models.SignupRequest{Username: "testuser3", Email: "invalid-email-format", Password: testPassword}
		bodyBytes, _ := json.Marshal(signupReqBody)

		res, err := http.Post(env.server.URL+"/auth/signup", "application/json", bytes.NewReader(bodyBytes))
		assert.NoError(err)
		defer res.Body.Close()
		assert.Equal(http.StatusBadRequest, res.StatusCode, "Expected status 400 Bad Request")
	})

	t.Run("Signup Bad Request (Short Password)", func(t *testing.T) {
		signupReqBody := models.SignupRequest{Username: "testuser4", Email: "shortpass@example.com", Password: "short"}
		bodyBytes, _ := json.Marshal(signupReqBody)

		res, err := http.Post(env.server.URL+"/auth/signup", "application/json", bytes.NewReader(bodyBytes))
		assert.NoError(err)
		defer res.Body.Close()
		assert.Equal(http.StatusBadRequest, res.StatusCode, "Expected status 400 Bad Request")
	})

	// --- Test Login ---
	t.Run("Login Success", func(t *testing.T) {
		// Assumes user from initial successful signup exists
		loginReqBody := models.LoginRequest{Email: testEmail, Password: testPassword}
		bodyBytes, _ := json.Marshal(loginReqBody)

		res, err := http.Post(env.server.URL+"/auth/login", "application/json", bytes.NewReader(bodyBytes))
		assert.NoError(err)
		defer res.Body.Close()
		assert.Equal(http.StatusOK, res.StatusCode, "Expected status 200 OK")

		var resBody models.LoginResponse
		err = json.NewDecoder(res.Body).Decode(&resBody)
		assert.NoError(err, "Failed to decode login response body")
		assert.Equal("Logged in successfully", resBody.Message)
		assert.NotEmpty(resBody.Token, "Token should not be empty on successful login")

		// Validate the token against the known test secret
		userID, err := auth.ValidateJWT(resBody.Token, testJWTSecret)
		assert.NoError(err, "Returned token should be valid")
		assert.NotEmpty(userID, "UserID claim should be present")
	})

	t.Run("Login Unauthorized (Wrong Password)", func(t *testing.T) {
		loginReqBody := models.LoginRequest{Email: testEmail, Password: "IncorrectPassword"}
		bodyBytes, _ := json.Marshal(loginReqBody)

		res, err := http.Post(env.server.URL+"/auth/login", "application/json", bytes.NewReader(bodyBytes))
		assert.NoError(err)
		defer res.Body.Close()
		assert.Equal(http.StatusUnauthorized, res.StatusCode, "Expected status 401 Unauthorized for wrong password")
	})

	t.Run("Login Unauthorized (User Not Found)", func(t *testing.T) {
		loginReqBody := models.LoginRequest{Email: "nosuchuser@example.com", Password: "anyPassword"}
		bodyBytes, _ := json.Marshal(loginReqBody)

		res, err := http.Post(env.server.URL+"/auth/login", "application/json", bytes.NewReader(bodyBytes))
		assert.NoError(err)
		defer res.Body.Close()
		// Unknown email and wrong password are indistinguishable to callers
		assert.Equal(http.StatusUnauthorized, res.StatusCode, "Expected status 401 Unauthorized for non-existent user")
	})

	t.Run("Protected Route Requires Token", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/connections", nil)
		res, err := http.DefaultClient.Do(req)
		assert.NoError(err)
		defer res.Body.Close()
		assert.Equal(http.StatusUnauthorized, res.StatusCode, "Expected status 401 without Authorization header")
	})
}
