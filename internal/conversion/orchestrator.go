// Package conversion turns qualifying pipeline-stage transitions into
// journaled, queued Google Ads conversion uploads.
package conversion

import (
	"context"

	"clickbridge_backend/internal/googleads"
	"clickbridge_backend/internal/kommo"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/logger"

	"github.com/google/uuid"
)

// Journal is the at-most-once upload ledger.
type Journal interface {
	Claim(ctx context.Context, leadID int64, conversionType, gclid, gbraid string) (uuid.UUID, bool, error)
	MarkUploaded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// CRM is the lead read surface the orchestrator and worker need.
type CRM interface {
	GetLead(ctx context.Context, leadID int64) (*kommo.Lead, error)
	ContactInfo(ctx context.Context, lead *kommo.Lead) (kommo.ContactInfo, error)
	FieldIDs() config.KommoFieldIDs
}

// Matcher retries click-log enrichment for leads that reached a qualifying
// stage before any click was attached.
type Matcher interface {
	MatchMessage(ctx context.Context, leadID int64, phoneNumber string) (bool, error)
}

// StageChange describes one lead status transition reported by the CRM.
type StageChange struct {
	LeadID         int64
	StatusID       int64
	PipelineID     int64
	Phone          string
	ConversionType string
}

// Orchestrator decides whether a stage transition produces a conversion
// upload and hands qualified ones to the queue.
type Orchestrator struct {
	journal Journal
	crm     CRM
	matcher Matcher
	queue   Enqueuer
	stages  map[string][]int64
	log     *logger.Logger
}

// NewOrchestrator creates a stage-transition orchestrator.
func NewOrchestrator(journal Journal, crm CRM, matcher Matcher, queue Enqueuer, cfg config.ConversionConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		journal: journal,
		crm:     crm,
		matcher: matcher,
		queue:   queue,
		stages:  cfg.GetQualifyingStages(),
		log:     log,
	}
}

// HandleStageChange processes one status transition. Non-qualifying stages,
// leads without click identifiers and already-journaled conversions are all
// quiet no-ops; only infrastructure failures surface as errors.
func (o *Orchestrator) HandleStageChange(ctx context.Context, change StageChange) error {
	log := o.log.WithContext(ctx)

	conversionType, err := googleads.ParseConversionType(change.ConversionType)
	if err != nil {
		return err
	}

	if !o.qualifies(conversionType, change.StatusID) {
		log.Debug("stage does not qualify for conversion",
			"lead_id", change.LeadID,
			"status_id", change.StatusID,
			"conversion_type", change.ConversionType,
		)
		return nil
	}

	lead, err := o.crm.GetLead(ctx, change.LeadID)
	if err != nil {
		return err
	}

	gclid, gbraid, err := o.clickIdentifiers(ctx, lead, change)
	if err != nil {
		return err
	}
	if gclid == "" && gbraid == "" {
		o.log.ConversionEvent("skipped_no_click", change.LeadID, change.ConversionType)
		return nil
	}

	uploadID, claimed, err := o.journal.Claim(ctx, change.LeadID, change.ConversionType, gclid, gbraid)
	if err != nil {
		return err
	}
	if !claimed {
		o.log.ConversionEvent("duplicate_suppressed", change.LeadID, change.ConversionType)
		return nil
	}

	payload := UploadPayload{
		UploadID:       uploadID.String(),
		LeadID:         change.LeadID,
		ConversionType: change.ConversionType,
	}
	if err := o.queue.EnqueueUpload(ctx, payload); err != nil {
		if markErr := o.journal.MarkFailed(ctx, uploadID, err.Error()); markErr != nil {
			log.Error("failed to record enqueue failure", "upload_id", uploadID, "error", markErr)
		}
		return err
	}

	o.log.ConversionEvent("enqueued", change.LeadID, change.ConversionType)
	return nil
}

// qualifies checks the configured stage map. A conversion type with no
// configured stages accepts every transition, matching accounts that key the
// webhook URL per stage instead.
func (o *Orchestrator) qualifies(conversionType googleads.ConversionType, statusID int64) bool {
	stages := o.stages[string(conversionType)]
	if len(stages) == 0 || statusID == 0 {
		return true
	}
	for _, stage := range stages {
		if stage == statusID {
			return true
		}
	}
	return false
}

// clickIdentifiers reads the lead's click fields, attempting one late match
// against the click log when the lead reached a qualifying stage unenriched.
func (o *Orchestrator) clickIdentifiers(ctx context.Context, lead *kommo.Lead, change StageChange) (string, string, error) {
	fieldIDs := o.crm.FieldIDs()
	gclid := lead.FieldValue(fieldIDs.GCLID)
	gbraid := lead.FieldValue(fieldIDs.GBRAID)
	if gclid != "" || gbraid != "" {
		return gclid, gbraid, nil
	}

	matched, err := o.matcher.MatchMessage(ctx, change.LeadID, change.Phone)
	if err != nil {
		return "", "", err
	}
	if !matched {
		return "", "", nil
	}

	refreshed, err := o.crm.GetLead(ctx, change.LeadID)
	if err != nil {
		return "", "", err
	}
	return refreshed.FieldValue(fieldIDs.GCLID), refreshed.FieldValue(fieldIDs.GBRAID), nil
}
