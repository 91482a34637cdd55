package clicklog

import (
	"net/http"

	"clickbridge_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// ClickBeaconRequest is the payload sent by the browser tracking snippet.
type ClickBeaconRequest struct {
	GCLID          string `json:"gclid"`
	GBRAID         string `json:"gbraid"`
	PagePath       string `json:"pagePath"`
	CorrelationKey string `json:"correlationKey"`
}

// Handler handles click beacon HTTP requests.
type Handler struct {
	service *Service
	log     *logger.Logger
}

// NewHandler creates a new click beacon handler.
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// HandleClickBeacon ingests a click beacon from a public page.
// POST /outbound-click-logs
//
// The browser fires this beacon best-effort and discards the response, so the
// endpoint is uniformly success-shaped: malformed bodies, missing identifiers
// and store failures all produce the same accepted reply. Anything else would
// turn the endpoint into an oracle for probing which clicks were stored.
func (h *Handler) HandleClickBeacon(c *gin.Context) {
	accepted := gin.H{"status": "accepted"}

	var req ClickBeaconRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("malformed click beacon", "error", err.Error())
		c.JSON(http.StatusOK, accepted)
		return
	}

	if err := h.service.Ingest(c.Request.Context(), IngestInput{
		GCLID:          req.GCLID,
		GBRAID:         req.GBRAID,
		PagePath:       req.PagePath,
		CorrelationKey: req.CorrelationKey,
	}); err != nil {
		h.log.Error("click beacon ingest failed", "error", err.Error())
	}

	c.JSON(http.StatusOK, accepted)
}
