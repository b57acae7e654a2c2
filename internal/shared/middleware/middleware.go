package middleware

import (
	"net/http"
	"strings"
	"time"

	"seatlock/internal/shared/config"
	"seatlock/internal/shared/utils/response"
	"seatlock/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Roles carried in the access token "role" claim
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Context keys set by the auth middleware
const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// JWTAuthWithConfig rejects requests without a valid access token
func JWTAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, reason := parseBearer(c, cfg)
		if claims == nil {
			logger.GetDefault().LogAuthFailure(c.Request.Context(), reason, c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, reason, nil, nil)
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuthWithConfig sets the user in context when a valid token is present
func OptionalAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, _ := parseBearer(c, cfg); claims != nil {
			setClaims(c, claims)
		}
		c.Next()
	}
}

// RequireRole middleware checks if user has required role
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextUserRole)
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		if role, _ := userRole.(string); role != requiredRole {
			response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(RoleAdmin)
}

// GetUserID returns the authenticated user id, if any
func GetUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// IssueAccessToken signs an access token in the shape the auth middleware accepts.
// Used by the seeder and tests; user registration lives outside this service.
func IssueAccessToken(secret, userID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"type":    "access",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// RequestLogger logs each request once it completes
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.GetDefault().LogHTTPRequest(c, time.Since(start))
	}
}

func parseBearer(c *gin.Context, cfg *config.Config) (jwt.MapClaims, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		// browsers cannot set headers on a websocket upgrade
		if t := c.Query("token"); t != "" {
			authHeader = "Bearer " + t
		} else {
			return nil, "Authorization header is required"
		}
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, "authorization header format must be Bearer {token}"
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.JWT.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, "invalid or expired token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "invalid token claims"
	}
	if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
		return nil, "invalid token type"
	}
	if id, _ := claims["user_id"].(string); id == "" {
		return nil, "token has no subject"
	}
	return claims, ""
}

func setClaims(c *gin.Context, claims jwt.MapClaims) {
	c.Set(ContextUserID, claims["user_id"])
	c.Set(ContextUserRole, claims["role"])
}
