package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/manenim/tenant-limiter/pkg/limiter"
)

// APIResponse represents a standard API response structure
type APIResponse struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Message string     `json:"message,omitempty"`
}

// ErrorInfo represents error information in API response
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func successResponse(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

func errorResponse(c *gin.Context, statusCode int, errType, message string) {
	c.AbortWithStatusJSON(statusCode, APIResponse{
		Success: false,
		Error:   &ErrorInfo{Type: errType, Message: message},
	})
}

type errorMapping struct {
	target error
	status int
	kind   string
}

var errorMappings = []errorMapping{
	{limiter.ErrInvalidConfig, http.StatusBadRequest, "invalid_config"},
	{limiter.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{limiter.ErrClientBlocked, http.StatusForbidden, "client_blocked"},
	{limiter.ErrProgramPaused, http.StatusServiceUnavailable, "program_paused"},
	{limiter.ErrRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_exceeded"},
	{limiter.ErrBurstLimitExceeded, http.StatusTooManyRequests, "burst_limit_exceeded"},
	{limiter.ErrNotInitialized, http.StatusNotFound, "not_initialized"},
	{limiter.ErrNotRegistered, http.StatusNotFound, "not_registered"},
	{limiter.ErrAlreadyInitialized, http.StatusConflict, "already_initialized"},
	{limiter.ErrAlreadyRegistered, http.StatusConflict, "already_registered"},
}

// errorResponseWithError maps limiter failures onto HTTP statuses. Anything
// unrecognised is reported as an internal error without details.
func errorResponseWithError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			info := &ErrorInfo{Type: m.kind, Message: m.target.Error()}
			var opErr *limiter.OpError
			if errors.As(err, &opErr) {
				info.Details = opErr.Op
			}
			c.AbortWithStatusJSON(m.status, APIResponse{Success: false, Error: info})
			return
		}
	}

	_ = c.Error(err)
	errorResponse(c, http.StatusInternalServerError, "internal", "Internal server error occurred")
}
