// Package webhook receives CRM event callbacks and routes them to the
// matcher and the conversion orchestrator.
package webhook

import (
	"context"

	"clickbridge_backend/internal/conversion"
	"clickbridge_backend/platform/apperr"
	"clickbridge_backend/platform/httpkit"
	"clickbridge_backend/platform/logger"
	"clickbridge_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Event names the CRM sends.
const (
	EventIncomingMessage   = "incoming_message"
	EventLeadStatusChanged = "lead_status_changed"
)

// UpdateLeadRequest is the CRM callback body. Every field beyond event is
// optional because the CRM omits them depending on the trigger.
type UpdateLeadRequest struct {
	Event      string `json:"event" validate:"required"`
	LeadID     int64  `json:"lead_id" validate:"omitempty,gt=0"`
	Phone      string `json:"phone"`
	StatusID   int64  `json:"status_id" validate:"omitempty,gt=0"`
	PipelineID int64  `json:"pipeline_id" validate:"omitempty,gt=0"`
}

// Matcher correlates an inbound message with a stored click.
type Matcher interface {
	MatchMessage(ctx context.Context, leadID int64, phoneNumber string) (bool, error)
}

// Orchestrator processes a qualifying stage transition.
type Orchestrator interface {
	HandleStageChange(ctx context.Context, change conversion.StageChange) error
}

// Handler handles CRM webhook HTTP requests.
type Handler struct {
	matcher      Matcher
	orchestrator Orchestrator
	val          *validator.Validator
	log          *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(matcher Matcher, orchestrator Orchestrator, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{matcher: matcher, orchestrator: orchestrator, val: val, log: log}
}

// HandleUpdateLead dispatches one CRM event.
// POST /update-lead?conversion_type=<type>
func (h *Handler) HandleUpdateLead(c *gin.Context) {
	var req UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid webhook body"))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid webhook payload").WithDetails(err.Error()))
		return
	}

	ctx := c.Request.Context()
	h.log.WithContext(ctx).Debug("webhook received", "event", req.Event, "lead_id", req.LeadID)

	switch req.Event {
	case EventIncomingMessage:
		matched, err := h.matcher.MatchMessage(ctx, req.LeadID, req.Phone)
		if err != nil {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.OK(c, gin.H{"matched": matched})

	case EventLeadStatusChanged:
		change := conversion.StageChange{
			LeadID:         req.LeadID,
			StatusID:       req.StatusID,
			PipelineID:     req.PipelineID,
			Phone:          req.Phone,
			ConversionType: c.Query("conversion_type"),
		}
		if err := h.orchestrator.HandleStageChange(ctx, change); err != nil {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.OK(c, gin.H{"status": "processed"})

	default:
		httpkit.HandleError(c, apperr.Validation("unknown webhook event"))
	}
}
