package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manenim/tenant-limiter/pkg/limiter"
)

// NewRouter wires the limiter endpoints. gatherer may be nil to leave
// /metrics unmounted.
func NewRouter(svc *limiter.Service, gatherer prometheus.Gatherer, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), AccessLog(log), Recovery(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	h := NewHandler(svc)
	v1 := r.Group("/v1")
	v1.GET("/policy", h.GetPolicy)
	v1.GET("/clients/:id", h.GetBucket)

	authed := v1.Group("", CallerIdentity())
	{
		authed.POST("/policy", h.InitializePolicy)
		authed.PUT("/policy", h.UpdateConfig)
		authed.POST("/policy/pause", h.TogglePause)

		authed.POST("/clients", h.Register)
		authed.POST("/clients/:id/consume", h.Consume)
		authed.POST("/clients/:id/reset", h.ResetClient)
		authed.POST("/clients/:id/block", h.BlockClient)
	}

	return r
}
