package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/consult-signaling/config"
	"github.com/mossy-p/consult-signaling/internal/metrics"
	"github.com/mossy-p/consult-signaling/internal/middleware"
	"github.com/mossy-p/consult-signaling/internal/relay"
)

// NewRouter wires every HTTP route of the signaling server.
func NewRouter(cfg *config.Config, r *relay.Relay, presence PresenceCounter, m *metrics.Metrics, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	// Global CORS middleware (runs before routing)
	router.Use(middleware.OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.PrometheusHandler(m)))

	var auth []gin.HandlerFunc
	if cfg.AuthEnabled() {
		auth = append(auth, middleware.JWTAuth(cfg.JWTSecret))
	}

	rooms := NewRoomsHandler(r, presence, logger)
	apiGroup := router.Group("/api", auth...)
	{
		apiGroup.GET("/rooms/:roomId", rooms.GetRoom)
	}

	signaling := NewSignalingHandler(r, cfg.Session, m, logger)
	wsGroup := router.Group("/ws", auth...)
	{
		wsGroup.GET("/signal", signaling.HandleSignaling)
		wsGroup.GET("/signal/:roomId", signaling.HandleSignaling)
	}

	return router
}
