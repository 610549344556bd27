package httpapi

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/manenim/tenant-limiter/pkg/limiter"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderCaller    = "X-Caller-Identity"

	callerKey    = "caller"
	requestIDKey = "request_id"
)

// RequestID propagates the inbound request ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func Recovery(log *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic recovered",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", c.GetString(requestIDKey),
			"error", recovered,
			"stack", string(debug.Stack()))

		errorResponse(c, http.StatusInternalServerError, "internal", "Internal server error occurred")
	})
}

func AccessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.Last().Err)
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			log.Error("HTTP request completed with server error", args...)
		case status >= 400:
			log.Warn("HTTP request completed with client error", args...)
		default:
			log.Debug("HTTP request completed successfully", args...)
		}
	}
}

// CallerIdentity reads the caller's identity from the X-Caller-Identity
// header. The header is trusted as is; authentication happens upstream.
func CallerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderCaller)
		if raw == "" {
			errorResponse(c, http.StatusUnauthorized, "unauthenticated", "missing "+HeaderCaller+" header")
			return
		}
		id, err := limiter.ParseIdentity(raw)
		if err != nil {
			errorResponse(c, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		c.Set(callerKey, id)
		c.Next()
	}
}

func callerFrom(c *gin.Context) limiter.Identity {
	id, _ := c.MustGet(callerKey).(limiter.Identity)
	return id
}
