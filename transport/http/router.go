package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RouterConfig holds the router's settings
type RouterConfig struct {
	ServiceAPIKey  string
	RateLimitRPS   float64
	RateLimitBurst int
	Metrics        http.Handler // served on /metrics when set
	Log            logrus.FieldLogger
}

// SetupRouter sets up the Gin router
func SetupRouter(auth Authenticator, bridge Bridge, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Log))

	// Create handlers
	authHandlers := NewAuthHandlers(auth)
	bridgeHandlers := NewBridgeHandlers(bridge)
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	// Wallet login
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/nonce", limiter.Handler(), authHandlers.Nonce)
		authGroup.POST("/verify", limiter.Handler(), authHandlers.Verify)
		authGroup.GET("/me", AuthMiddleware(auth), authHandlers.Me)
	}

	// Conversions
	bridgeGroup := router.Group("/bridge")
	bridgeGroup.Use(AuthMiddleware(auth))
	{
		bridgeGroup.POST("/build", bridgeHandlers.Build)
		bridgeGroup.POST("/finalize", bridgeHandlers.Finalize)
	}

	// Operators
	admin := router.Group("/admin")
	admin.Use(AuthMiddleware(auth), AdminMiddleware(auth))
	{
		admin.GET("/conversions", bridgeHandlers.ListConversions)
		admin.POST("/conversions/:id/reconcile", bridgeHandlers.Reconcile)
	}

	// Game services
	game := router.Group("/game")
	game.Use(ServiceKeyMiddleware(cfg.ServiceAPIKey))
	{
		game.GET("/players/:playerId/balance", bridgeHandlers.PlayerBalance)
		game.POST("/validate-game-id", bridgeHandlers.PlayerBalance)
	}

	return router
}
