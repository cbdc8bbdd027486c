package handlers

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// HeaderRequestID carries the request id in and out.
const HeaderRequestID = "X-Request-ID"

// HeaderAPIKey carries the admin API key.
const HeaderAPIKey = "X-API-Key"

const requestIDKey = "request_id"

// errorBody mirrors the API error envelope so middleware can abort without
// importing the server package.
func errorBody(code, message string) gin.H {
	return gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST ID & LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// RequestID assigns every request an id and attaches a request-scoped logger
// to the request context.
func RequestID(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)

		ctx := logger.WithContext(c.Request.Context(), log.With(zap.String("request_id", id)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger logs every request after it completes.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			logger.Latency(time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", GetRequestID(c)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

// Recovery turns panics into 500 responses and logs the stack.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", GetRequestID(c)),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					errorBody("internal_error", "An unexpected error occurred"))
			}
		}()
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth checks the X-API-Key header (or a Bearer token) against a
// bcrypt hash.
type APIKeyAuth struct {
	hash []byte
}

// NewAPIKeyAuth creates an authenticator for the given bcrypt hash.
func NewAPIKeyAuth(hash string) *APIKeyAuth {
	return &APIKeyAuth{hash: []byte(hash)}
}

// Enabled reports whether a hash is configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.hash) > 0
}

// IsValid checks a presented key.
func (a *APIKeyAuth) IsValid(key string) bool {
	if !a.Enabled() || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, []byte(key)) == nil
}

// Middleware rejects requests without a valid key. With no hash configured
// every request is rejected.
func (a *APIKeyAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderAPIKey)
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("missing_api_key", "API key is required"))
			return
		}
		if !a.IsValid(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("invalid_api_key", "Invalid API key"))
			return
		}
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeaders adds security-related headers for a JSON API.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// NoCache marks responses as uncacheable; used on admin routes.
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		c.Next()
	}
}
