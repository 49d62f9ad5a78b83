// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/datalink-labs/datalink-backend/api/models"
	"github.com/datalink-labs/datalink-backend/internal/logger"
)

var (
	ErrTokenMalformed          = errors.New("malformed token")
	ErrTokenExpired            = errors.New("token is expired or not valid yet")
	ErrTokenInvalid            = errors.New("invalid token")
	ErrTokenClaimsInvalid      = errors.New("invalid token claims")
	ErrUnexpectedSigningMethod = errors.New("unexpected token signing method")
	customLog                  = logger.NewLogger()
)

// --- Password Utilities ---

// HashPassword generates a bcrypt hash for the given password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		customLog.Warnf("Error generating bcrypt hash: %v", err)
		// Don't return raw bcrypt error to caller usually
		return "", fmt.Errorf("failed to hash password")
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plaintext password with a stored bcrypt hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	// Log unexpected errors, but return false for mismatch or other errors
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		customLog.Warnf("Unexpected error comparing password hash: %v", err)
	}
	return err == nil
}

// --- JWT Utilities ---

// GenerateJWT creates a signed JWT string for a given userID
func GenerateJWT(userID, jwtSecret string, jwtExpiration time.Duration) (string, error) {
	claims := models.CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "datalink-backend",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		customLog.Warnf("Error signing JWT for user %s: %v", userID, err)
		return "", fmt.Errorf("failed to generate token")
	}

	return signedToken, nil
}

// ValidateJWT parses and validates a JWT string, returning the UserID if valid.
func ValidateJWT(tokenString, jwtSecret string) (string, error) {
	claims := &models.CustomClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			customLog.Warnf("ValidateJWT: Unexpected signing method: %v", token.Header["alg"])
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})

	// Handle parsing errors, mapping library errors to our defined errors
	if err != nil {
		customLog.Warnf("ValidateJWT: Token parsing error: %v", err)
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return "", ErrTokenExpired
		case errors.Is(err, ErrUnexpectedSigningMethod):
			return "", err
		default:
			return "", ErrTokenInvalid
		}
	}

	if !token.Valid {
		customLog.Warnf("ValidateJWT: Invalid token marked by library")
		return "", ErrTokenInvalid
	}

	if claims.UserID == "" {
		customLog.Warnf("ValidateJWT: UserID missing or invalid in token claims")
		return "", ErrTokenClaimsInvalid
	}

	return claims.UserID, nil
}
