package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"alert-engine/internal/config"
	"alert-engine/internal/logging"
	"alert-engine/internal/metrics"
)

// NewRouter wires the admin API, the WebSocket attach point for the in_app
// channel, and the operational endpoints.
func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(cfg.API.BasePath)
	{
		api.POST("/alerts", h.CreateAlert)
		api.POST("/alerts/bulk", h.BulkCreateAlerts)
		api.GET("/alerts", h.QueryAlerts)
		api.GET("/alerts/:id", h.GetAlert)
		api.PATCH("/alerts/:id/status", h.UpdateStatus)
		api.POST("/alerts/:id/acknowledge", h.Acknowledge)
		api.POST("/alerts/:id/escalate", h.Escalate)
		api.GET("/alerts/:id/attempts", h.GetAttempts)
		api.GET("/alerts/:id/acknowledgments", h.GetAcknowledgments)
		api.GET("/alerts/:id/escalations", h.GetEscalations)
	}

	r.GET("/ws/:recipient_id", h.WebSocket)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
