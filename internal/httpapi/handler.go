package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/manenim/tenant-limiter/pkg/limiter"
)

// ConfigRequest carries a policy configuration. Ranges are checked by
// limiter.Config.Validate so every bad value is reported as invalid_config.
type ConfigRequest struct {
	MaxRequests   uint64 `json:"max_requests"`
	WindowSeconds int64  `json:"window_seconds"`
	BurstLimit    uint64 `json:"burst_limit"`
}

func (r ConfigRequest) config() limiter.Config {
	return limiter.Config{
		MaxRequests:   r.MaxRequests,
		WindowSeconds: r.WindowSeconds,
		BurstLimit:    r.BurstLimit,
	}
}

// DecisionResponse is the body returned by the consume endpoint.
type DecisionResponse struct {
	Allowed       bool           `json:"allowed"`
	Limit         uint64         `json:"limit"`
	Remaining     uint64         `json:"remaining"`
	ResetAt       int64          `json:"reset_at"`
	RetryAfterSec int64          `json:"retry_after_seconds,omitempty"`
	Bucket        limiter.Bucket `json:"bucket"`
}

type Handler struct {
	svc *limiter.Service
}

func NewHandler(svc *limiter.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) InitializePolicy(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "validation", err.Error())
		return
	}
	p, err := h.svc.Initialize(c.Request.Context(), callerFrom(c), req.config())
	if err != nil {
		errorResponseWithError(c, err)
		return
	}
	successResponse(c, http.StatusCreated, "policy initialized", p)
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "validation", err.Error())
		return
	}
	p, err := h.svc.UpdateConfig(c.Request.Context(), callerFrom(c), req.config())
	if err != nil {
		errorResponseWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, "config updated", p)
}

func (h *Handler) TogglePause(c *gin.Context) {
	p, err := h.svc.TogglePause(c.Request.Context(), callerFrom(c))
	if err != nil {
		errorResponseWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, "", p)
}

func (h *Handler) GetPolicy(c *gin.Context) {
	p, err := h.svc.Policy(c.Request.Context())
	if err != nil {
		errorResponseWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, "", p)
}

func (h *Handler) Register(c *gin.Context) {
	b, err := h.svc.Register(c.Request.Context(), callerFrom(c))
	if err != nil {
		errorResponseWithError(c, err)
		return
	}
	successResponse(c, http.StatusCreated, "client registered", b)
}

func (h *Handler) Consume(c *gin.Context) {
	owner, ok := pathIdentity(c)
	if !ok {
		return
	}

	dec, err := h.svc.Consume(c.Request.Context(), callerFrom(c), owner)
	if err != nil && !limiter.IsQuotaError(err) {
		errorResponseWithError(c, err)
		return
	}

	c.Header("X-RateLimit-Limit", strconv.FormatUint(dec.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatUint(dec.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(dec.ResetTime.Unix(), 10))
	if err != nil {
		c.Header("Retry-After", strconv.FormatInt(int64(dec.RetryAfter.Seconds()), 10))
		errorResponseWithError(c, err)
		return
	}

	successResponse(c, http.StatusOK, "", DecisionResponse{
		Allowed:   dec.Allow,
		Limit:     dec.Limit,
		Remaining: dec.Remaining,
		ResetAt:   dec.ResetTime.Unix(),
		Bucket:    dec.Bucket,
	})
}

func (h *Handler) ResetClient(c *gin.Context) {
	target, ok := pathIdentity(c)
	if !ok {
		return
	}
	b, err := h.svc.ResetClient(c.Request.Context(), callerFrom(c), target)
	if err != nil {
		errorResponseWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, "client reset", b)
}

func (h *Handler) BlockClient(c *gin.Context) {
	target, ok := pathIdentity(c)
	if !ok {
		return
	}
	b, err := h.svc.BlockClient(c.Request.Context(), callerFrom(c), target)
	if err != nil {
		errorResponseWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, "client blocked", b)
}

func (h *Handler) GetBucket(c *gin.Context) {
	owner, ok := pathIdentity(c)
	if !ok {
		return
	}
	b, err := h.svc.Bucket(c.Request.Context(), owner)
	if err != nil {
		errorResponseWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, "", b)
}

func pathIdentity(c *gin.Context) (limiter.Identity, bool) {
	id, err := limiter.ParseIdentity(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "validation", err.Error())
		return limiter.Identity{}, false
	}
	return id, true
}
