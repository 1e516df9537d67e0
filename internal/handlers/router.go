package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/middleware"
	"github.com/fairplay/roundhouse/internal/services"
)

// Router bundles what the HTTP surface needs.
type Router struct {
	Game      *GameHandler
	User      *UserHandler
	WebSocket *WebSocketHandler
	JWT       *services.JWTService
	Redis     *services.RedisService
	Health    func(ctx context.Context) error
	Log       *zap.Logger
}

func (r *Router) Engine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Metrics())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", r.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/verify", r.Game.Verify)
	router.GET("/audit", r.Game.Audit)
	router.GET("/anchor/latest", r.Game.LatestAnchor)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(r.JWT), middleware.RateLimitMiddleware(r.Redis, r.Log))
	{
		protected.GET("/balance", r.User.GetBalance)
		protected.GET("/history", r.User.GetHistory)
		protected.GET("/ws", r.WebSocket.HandleWebSocket)

		rounds := protected.Group("/rounds")
		{
			rounds.POST("", r.Game.CreateRound)
			rounds.GET("/:id", r.Game.GetRound)
			rounds.POST("/:id/bets", r.Game.PlaceBet)
			rounds.POST("/:id/finalize", r.Game.FinalizeRound)
		}
	}

	return router
}

func (r *Router) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if r.Health != nil {
		if err := r.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
