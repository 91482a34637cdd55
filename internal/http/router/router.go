// Package router assembles the Gin engine from registered domain modules.
package router

import (
	"context"
	"net/http"
	"strings"

	apphttp "clickbridge_backend/internal/http"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/httpkit"
	"clickbridge_backend/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Options holds the dependencies needed to build the router.
type Options struct {
	Config       config.HTTPConfig
	WebhookToken string
	Logger       *logger.Logger
	Health       HealthChecker
	Modules      []apphttp.Module
}

// New builds the Gin engine and mounts every module's routes.
func New(opts Options) *gin.Engine {
	if !strings.EqualFold(gin.Mode(), gin.TestMode) {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(opts.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(corsMiddleware(opts.Config))

	engine.GET("/health", func(c *gin.Context) {
		if opts.Health != nil {
			if err := opts.Health.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	routerCtx := &apphttp.RouterContext{
		Engine:      engine,
		Root:        &engine.RouterGroup,
		WebhookAuth: httpkit.SharedTokenAuth(opts.WebhookToken),
		// Browser beacons are sparse per visitor; 1 rps with a small burst
		// absorbs multi-page sessions while blunting scripted probing.
		BeaconRateLimiter: httpkit.NewIPRateLimiter(rate.Limit(1), 10, opts.Logger),
	}

	for _, module := range opts.Modules {
		module.RegisterRoutes(routerCtx)
		opts.Logger.Info("registered http module", "module", module.Name())
	}

	return engine
}

func corsMiddleware(cfg config.HTTPConfig) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if cfg.GetCORSAllowAll() || len(cfg.GetCORSOrigins()) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.GetCORSOrigins()
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Webhook-Token", httpkit.RequestIDHeader}
	return cors.New(corsConfig)
}
