// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"clickbridge_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the main router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
// This avoids passing many parameters to each module's RegisterRoutes method.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// Root is the unversioned route group; the click beacon and CRM webhook
	// paths are part of the deployed contract and carry no /api/v1 prefix.
	Root *gin.RouterGroup
	// WebhookAuth guards CRM-facing webhook routes with the shared token.
	WebhookAuth gin.HandlerFunc
	// BeaconRateLimiter limits the public click-beacon endpoint per IP.
	BeaconRateLimiter *httpkit.IPRateLimiter
}
