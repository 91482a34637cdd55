package webhook

import (
	apphttp "clickbridge_backend/internal/http"
	"clickbridge_backend/platform/logger"
	"clickbridge_backend/platform/validator"
)

// Module is the CRM webhook module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates the webhook module.
func NewModule(matcher Matcher, orchestrator Orchestrator, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(matcher, orchestrator, val, log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Root.POST("/update-lead", ctx.WebhookAuth, m.handler.HandleUpdateLead)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
