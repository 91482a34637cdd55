package conversion

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"clickbridge_backend/internal/googleads"
	"clickbridge_backend/internal/kommo"
	"clickbridge_backend/platform/apperr"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Uploader is the ad-platform surface the worker needs.
type Uploader interface {
	UploadClickConversion(ctx context.Context, raw googleads.RawLead, conversionType googleads.ConversionType) error
}

// Alerter notifies operators about failures that need a human, like expired
// upstream credentials.
type Alerter interface {
	Notify(ctx context.Context, subject, body string) error
}

// Worker consumes conversion upload tasks from the asynq queue.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	journal  Journal
	crm      CRM
	uploader Uploader
	alerts   Alerter
	log      *logger.Logger
}

// NewWorker creates the upload worker bound to the configured queue.
func NewWorker(cfg config.SchedulerConfig, journal Journal, crm CRM, uploader Uploader, alerts Alerter, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		journal:  journal,
		crm:      crm,
		uploader: uploader,
		alerts:   alerts,
		log:      log,
	}

	mux.HandleFunc(TaskConversionUpload, w.handleUpload)

	return w, nil
}

// Run blocks processing tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("conversion worker stopped", "error", err)
	}
}

// handleUpload performs one conversion upload attempt. Typed upstream errors
// drive the retry decision: rate limits and transient failures go back to
// the queue, credential failures alert and stop, duplicates count as done.
func (w *Worker) handleUpload(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseUploadPayload(task)
	if err != nil {
		return fmt.Errorf("parse upload payload: %v: %w", err, asynq.SkipRetry)
	}

	uploadID, err := uuid.Parse(payload.UploadID)
	if err != nil {
		return fmt.Errorf("parse upload id: %v: %w", err, asynq.SkipRetry)
	}

	conversionType, err := googleads.ParseConversionType(payload.ConversionType)
	if err != nil {
		w.markFailed(ctx, uploadID, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	lead, err := w.crm.GetLead(ctx, payload.LeadID)
	if err != nil {
		if apperr.Retryable(err) {
			w.markFailedIfFinal(ctx, uploadID, err)
			return err
		}
		w.markFailed(ctx, uploadID, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	raw := w.buildRawLead(ctx, lead)
	uploadErr := w.uploader.UploadClickConversion(ctx, raw, conversionType)

	switch {
	case uploadErr == nil:
		if err := w.journal.MarkUploaded(ctx, uploadID); err != nil {
			return err
		}
		w.log.ConversionEvent("uploaded", payload.LeadID, payload.ConversionType)
		return nil

	case apperr.Is(uploadErr, apperr.KindDuplicateConversion):
		// The ad platform already has this conversion; the journal simply
		// catches up.
		if err := w.journal.MarkUploaded(ctx, uploadID); err != nil {
			return err
		}
		w.log.ConversionEvent("already_uploaded", payload.LeadID, payload.ConversionType)
		return nil

	case apperr.Is(uploadErr, apperr.KindUpstreamAuth):
		w.markFailed(ctx, uploadID, uploadErr)
		w.alertAuthFailure(ctx, payload, uploadErr)
		return fmt.Errorf("%v: %w", uploadErr, asynq.SkipRetry)

	case apperr.Retryable(uploadErr):
		w.markFailedIfFinal(ctx, uploadID, uploadErr)
		return uploadErr

	default:
		w.markFailed(ctx, uploadID, uploadErr)
		return fmt.Errorf("%v: %w", uploadErr, asynq.SkipRetry)
	}
}

func (w *Worker) markFailed(ctx context.Context, uploadID uuid.UUID, cause error) {
	if err := w.journal.MarkFailed(ctx, uploadID, cause.Error()); err != nil {
		w.log.Error("failed to record upload failure", "upload_id", uploadID, "error", err)
	}
}

// markFailedIfFinal leaves the journal row failed when asynq has exhausted
// its retries, so the backfill command can pick it up later.
func (w *Worker) markFailedIfFinal(ctx context.Context, uploadID uuid.UUID, cause error) {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return
	}
	if retried >= maxRetry {
		w.markFailed(ctx, uploadID, cause)
	}
}

func (w *Worker) alertAuthFailure(ctx context.Context, payload UploadPayload, cause error) {
	if w.alerts == nil {
		return
	}

	subject := "Google Ads credential failure"
	body := fmt.Sprintf(
		"Conversion upload for lead %d (%s) was rejected with an authentication error.\n\nError: %v\n\nRefresh the OAuth credentials, then run the conversion backfill.",
		payload.LeadID, payload.ConversionType, cause,
	)
	if err := w.alerts.Notify(ctx, subject, body); err != nil {
		w.log.Error("failed to send credential alert", "error", err)
	}
}

// buildRawLead flattens the CRM lead and its primary contact into the upload
// input. A missing contact only drops the hashed user identifiers.
func (w *Worker) buildRawLead(ctx context.Context, lead *kommo.Lead) googleads.RawLead {
	fieldIDs := w.crm.FieldIDs()

	raw := googleads.RawLead{
		LeadID:       lead.ID,
		GCLID:        lead.FieldValue(fieldIDs.GCLID),
		GBRAID:       lead.FieldValue(fieldIDs.GBRAID),
		CurrencyCode: lead.FieldValue(fieldIDs.CurrencyCode),
	}

	if value := lead.FieldValue(fieldIDs.ConversionValue); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			raw.ConversionValue = parsed
		}
	}
	raw.ConversionTime = parseConversionTime(lead.FieldValue(fieldIDs.ConversionTime))

	info, err := w.crm.ContactInfo(ctx, lead)
	if err != nil {
		w.log.WithContext(ctx).Debug("no contact info for lead", "lead_id", lead.ID, "error", err)
		return raw
	}
	raw.Email = info.Email
	raw.Phone = info.Phone

	return raw
}

// parseConversionTime accepts the two shapes the CRM field is populated
// with: RFC 3339 strings and unix-second timestamps. Anything else falls
// back to upload time.
func parseConversionTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds > 0 {
		return time.Unix(seconds, 0)
	}
	return time.Time{}
}
