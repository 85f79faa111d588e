package middleware

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/lumenart/curator/internal/logger"
)

const (
	AuthTypeKey    = "auth_type"
	AuthSubjectKey = "auth_subject"
)

// AuthConfig holds authentication configuration for the mutating endpoints
type AuthConfig struct {
	// JWTPublicKey is an RSA public key in PEM format
	JWTPublicKey string
	APIKeys      []string
}

// Enabled reports whether any credential source is configured. An empty
// config leaves the endpoints open, which is the local development mode.
func (c AuthConfig) Enabled() bool {
	return c.JWTPublicKey != "" || len(c.APIKeys) > 0
}

// AuthResult holds the outcome of one authentication attempt
type AuthResult struct {
	Success     bool
	AuthType    string
	AuthSubject string
	Error       error
}

// Authenticate validates the Authorization header value against the config.
// Both "Bearer <jwt>" and "APIKey <key>" schemes are accepted.
func Authenticate(authHeader string, cfg AuthConfig) AuthResult {
	result := AuthResult{}

	if authHeader == "" {
		result.Error = errors.New("missing Authorization header")
		return result
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		result.Error = errors.New("invalid Authorization header format")
		return result
	}

	authType := strings.ToLower(parts[0])
	credentials := parts[1]

	switch authType {
	case "bearer":
		claims, err := validateJWT(credentials, cfg.JWTPublicKey)
		if err != nil {
			result.Error = err
			return result
		}
		result.Success = true
		result.AuthType = "jwt"
		result.AuthSubject = claims.Subject

	case "apikey":
		if !validAPIKey(credentials, cfg.APIKeys) {
			result.Error = errors.New("invalid API key")
			return result
		}
		result.Success = true
		result.AuthType = "apikey"

	default:
		result.Error = fmt.Errorf("unsupported authorization type: %s", authType)
	}

	return result
}

// Auth returns a gin middleware guarding mutating endpoints. With an empty
// config it is a no-op.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled() {
			c.Next()
			return
		}

		result := Authenticate(c.GetHeader("Authorization"), cfg)
		if !result.Success {
			logger.Warn("authentication failed",
				zap.Error(result.Error),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Authentication failed",
				},
			})
			return
		}

		c.Set(AuthTypeKey, result.AuthType)
		if result.AuthSubject != "" {
			c.Set(AuthSubjectKey, result.AuthSubject)
		}

		c.Next()
	}
}

// validateJWT validates an RSA-signed JWT and returns its registered claims
func validateJWT(tokenString, publicKeyPEM string) (*jwt.RegisteredClaims, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not configured")
	}

	publicKey, err := parseRSAPublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// parseRSAPublicKey parses a PEM-encoded RSA public key
func parseRSAPublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return publicKey, nil
}

func validAPIKey(credentials string, keys []string) bool {
	for _, key := range keys {
		if key != "" && key == credentials {
			return true
		}
	}
	return false
}
