// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"inventario/internal/domain/catalogs/product"
	"inventario/internal/domain/stocktake"
	"inventario/internal/infrastructure/http/v1/handlers"
	"inventario/internal/infrastructure/http/v1/middleware"
	"inventario/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	Stocktakes *stocktake.Service
	Products   *product.Service

	// Health serves /health; nil skips the health routes.
	Health *handlers.HealthHandler

	// Mode is the gin mode; empty means release.
	Mode string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler())

	if cfg.Health != nil {
		health := router.Group("/health")
		{
			health.GET("/live", cfg.Health.Live)
			health.GET("/ready", cfg.Health.Ready)
			health.GET("/info", cfg.Health.Info)
		}
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))

	base := handlers.NewBaseHandler()
	registerRoutes(api.Group("/stocktakes"), stocktakeRoutes(handlers.NewStocktakeHandler(base, cfg.Stocktakes, cfg.Products)))
	registerRoutes(api.Group("/products"), productRoutes(handlers.NewProductHandler(base, cfg.Products)))

	return router
}
