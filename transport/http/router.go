package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/dripper/ports"
)

// RouterConfig wires the status surface
type RouterConfig struct {
	Sources []StatusSource
	Store   ports.Store
	Metrics http.Handler
	// Token guards every route but /healthz when set
	Token  string
	Logger *slog.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger))

	handlers := NewStatusHandlers(cfg.Sources, cfg.Store)

	router.GET("/healthz", handlers.Healthz)

	guarded := router.Group("/")
	guarded.Use(BearerGuard(cfg.Token))
	{
		guarded.GET("/status", handlers.Status)
		guarded.GET("/status/:address", handlers.Wallet)
		if cfg.Metrics != nil {
			guarded.GET("/metrics", gin.WrapH(cfg.Metrics))
		}
	}

	return router
}
