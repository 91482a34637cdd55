// Package clicklog provides the click-log bounded context module.
// This file defines the module that encapsulates setup and route registration.
package clicklog

import (
	apphttp "clickbridge_backend/internal/http"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

// Module is the click-log bounded context module implementing http.Module.
type Module struct {
	store   *Store
	handler *Handler
}

// NewModule creates and initializes the click-log module with all its dependencies.
func NewModule(rdb redis.UniversalClient, cfg config.ClickLogConfig, log *logger.Logger) *Module {
	store := NewStore(rdb, cfg.GetClickLogTTL())
	service := NewService(store, cfg.GetDefaultPhoneRegion(), log)
	handler := NewHandler(service, log)

	return &Module{
		store:   store,
		handler: handler,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "clicklog"
}

// Store exposes the click-log store to the matcher.
func (m *Module) Store() *Store {
	return m.store
}

// RegisterRoutes mounts click-log routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public beacon endpoint, no auth beyond transport protections.
	ctx.Root.POST("/outbound-click-logs", ctx.BeaconRateLimiter.RateLimit(), m.handler.HandleClickBeacon)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
