package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminRole passes every role check
const AdminRole = "mes_admin"

// Context keys set by JWTAuth and RequestID
const (
	CtxUserID    = "user_id"
	CtxUserName  = "user_name"
	CtxRoles     = "roles"
	CtxClaims    = "claims"
	CtxRequestID = "request_id"
)

// Logger logs one line per request, level picked from the status code.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(CtxRequestID)),
		}
		if userID := c.GetString(CtxUserID); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("Server error", fields...)
		case status >= 400:
			logger.Warn("Client error", fields...)
		default:
			logger.Info("Request", fields...)
		}
	}
}

// CORS allows any origin; the API is token authenticated.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With, X-Request-ID")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(CtxRequestID, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// JWTClaims issued by the identity service; roles are the workflow roles
// (warehouse_manager, production_coordinator, ...).
type JWTClaims struct {
	UserID string   `json:"uid"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

func abort(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

// JWTAuth accepts a bearer token, or ?token= for EventSource clients that
// cannot set headers.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string
		if parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			abort(c, http.StatusUnauthorized, 40100, "Authorization is required")
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, 40102, "Invalid or expired token")
			return
		}
		if claims.UserID == "" {
			abort(c, http.StatusUnauthorized, 40103, "Invalid token claims")
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxUserName, claims.Name)
		c.Set(CtxRoles, claims.Roles)
		c.Set(CtxClaims, claims)
		c.Next()
	}
}

// HasRole reports whether the authenticated user holds one of roles.
func HasRole(c *gin.Context, roles ...string) bool {
	userRoles, _ := c.Get(CtxRoles)
	held, _ := userRoles.([]string)
	for _, r := range held {
		if r == AdminRole {
			return true
		}
		for _, want := range roles {
			if r == want {
				return true
			}
		}
	}
	return false
}

// RequireRole lets the request through when the user holds any of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(CtxRoles); !exists {
			abort(c, http.StatusForbidden, 40310, "No roles found")
			return
		}
		if !HasRole(c, roles...) {
			abort(c, http.StatusForbidden, 40312, "Role required: "+strings.Join(roles, " or "))
			return
		}
		c.Next()
	}
}
