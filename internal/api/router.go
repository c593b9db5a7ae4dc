// Package api exposes the query engine over HTTP, NDJSON and WebSocket.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	AllowedOrigins []string
	RateLimiter    *ClientRateLimiter // nil disables rate limiting
	MetricsPath    string
	MetricsHandler http.Handler // nil disables the metrics endpoint
}

func NewRouter(logger *zap.Logger, handler *MarketDataHandler, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(logger))
	router.Use(CORS(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	v1 := router.Group("/api/v1")
	if cfg.RateLimiter != nil {
		v1.Use(RateLimit(cfg.RateLimiter))
	}

	const keyPath = "/:exchange/:market_type/:stream/:symbol"
	v1.GET("/market-data"+keyPath, handler.GetMarketData)
	v1.GET("/market-data-stream"+keyPath, handler.StreamMarketData)
	v1.GET("/market-data-ws"+keyPath, handler.WatchMarketData)
	v1.GET("/market-data-files"+keyPath, handler.ListFiles)

	return router
}
