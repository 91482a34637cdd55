package conversion

import (
	"context"
	"errors"
	"testing"
	"time"

	"clickbridge_backend/internal/googleads"
	"clickbridge_backend/internal/kommo"
	"clickbridge_backend/platform/apperr"
	"clickbridge_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	err      error
	uploaded []googleads.RawLead
	types    []googleads.ConversionType
}

func (f *fakeUploader) UploadClickConversion(_ context.Context, raw googleads.RawLead, conversionType googleads.ConversionType) error {
	if f.err != nil {
		return f.err
	}
	f.uploaded = append(f.uploaded, raw)
	f.types = append(f.types, conversionType)
	return nil
}

type fakeAlerter struct {
	subjects []string
}

func (f *fakeAlerter) Notify(_ context.Context, subject, _ string) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

func newTestWorker(crm *fakeCRM, uploader *fakeUploader, alerts *fakeAlerter) (*Worker, *fakeJournal) {
	journal := newFakeJournal()
	worker := &Worker{
		journal:  journal,
		crm:      crm,
		uploader: uploader,
		alerts:   alerts,
		log:      logger.New("development"),
	}
	return worker, journal
}

func uploadTask(t *testing.T, uploadID uuid.UUID, leadID int64, conversionType string) *asynq.Task {
	t.Helper()
	task, err := NewUploadTask(UploadPayload{
		UploadID:       uploadID.String(),
		LeadID:         leadID,
		ConversionType: conversionType,
	})
	require.NoError(t, err)
	return task
}

func richLead(leadID int64) *kommo.Lead {
	return &kommo.Lead{
		ID: leadID,
		CustomFields: []kommo.CustomFieldValue{
			kommo.TextField(testFieldIDs.GCLID, "abc123"),
			kommo.TextField(testFieldIDs.ConversionValue, "75.5"),
			kommo.TextField(testFieldIDs.CurrencyCode, "EUR"),
			kommo.TextField(testFieldIDs.ConversionTime, "2026-02-01T10:30:00Z"),
		},
	}
}

func TestHandleUploadSuccess(t *testing.T) {
	crm := &fakeCRM{
		leads:       map[int64]*kommo.Lead{9001: richLead(9001)},
		contactInfo: kommo.ContactInfo{Email: "lead@example.com", Phone: "+15551234567"},
	}
	uploader := &fakeUploader{}
	worker, journal := newTestWorker(crm, uploader, &fakeAlerter{})

	uploadID := uuid.New()
	err := worker.handleUpload(context.Background(), uploadTask(t, uploadID, 9001, "converted_lead"))
	require.NoError(t, err)

	require.Len(t, uploader.uploaded, 1)
	raw := uploader.uploaded[0]
	assert.Equal(t, "abc123", raw.GCLID)
	assert.Equal(t, 75.5, raw.ConversionValue)
	assert.Equal(t, "EUR", raw.CurrencyCode)
	assert.Equal(t, "lead@example.com", raw.Email)
	assert.Equal(t, "+15551234567", raw.Phone)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC), raw.ConversionTime.UTC())
	assert.Equal(t, googleads.ConversionConvertedLead, uploader.types[0])
	assert.Equal(t, []uuid.UUID{uploadID}, journal.uploaded)
}

func TestHandleUploadDuplicateCountsAsDone(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: richLead(9001)}}
	uploader := &fakeUploader{err: apperr.DuplicateConversion("already reported")}
	worker, journal := newTestWorker(crm, uploader, &fakeAlerter{})

	uploadID := uuid.New()
	err := worker.handleUpload(context.Background(), uploadTask(t, uploadID, 9001, "converted_lead"))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{uploadID}, journal.uploaded)
}

func TestHandleUploadAuthFailureAlertsAndStops(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: richLead(9001)}}
	uploader := &fakeUploader{err: apperr.UpstreamAuth("invalid refresh token")}
	alerts := &fakeAlerter{}
	worker, journal := newTestWorker(crm, uploader, alerts)

	uploadID := uuid.New()
	err := worker.handleUpload(context.Background(), uploadTask(t, uploadID, 9001, "converted_lead"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "auth failures must not be retried")
	assert.Len(t, alerts.subjects, 1)
	assert.Contains(t, journal.failed, uploadID)
	assert.Empty(t, journal.uploaded)
}

func TestHandleUploadTransientFailureIsRetried(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: richLead(9001)}}
	uploader := &fakeUploader{err: apperr.Transient("upstream 503")}
	worker, journal := newTestWorker(crm, uploader, &fakeAlerter{})

	err := worker.handleUpload(context.Background(), uploadTask(t, uuid.New(), 9001, "converted_lead"))

	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "transient failures go back to the queue")
	assert.Empty(t, journal.uploaded)
}

func TestHandleUploadValidationFailureIsTerminal(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: {ID: 9001}}}
	uploader := &fakeUploader{err: apperr.Validation("no click identifier")}
	worker, journal := newTestWorker(crm, uploader, &fakeAlerter{})

	uploadID := uuid.New()
	err := worker.handleUpload(context.Background(), uploadTask(t, uploadID, 9001, "converted_lead"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Contains(t, journal.failed, uploadID)
}

func TestHandleUploadMissingContactStillUploads(t *testing.T) {
	crm := &fakeCRM{
		leads:      map[int64]*kommo.Lead{9001: richLead(9001)},
		contactErr: apperr.NotFound("lead has no linked contact"),
	}
	uploader := &fakeUploader{}
	worker, _ := newTestWorker(crm, uploader, &fakeAlerter{})

	err := worker.handleUpload(context.Background(), uploadTask(t, uuid.New(), 9001, "converted_lead"))
	require.NoError(t, err)

	require.Len(t, uploader.uploaded, 1)
	assert.Empty(t, uploader.uploaded[0].Email)
	assert.Empty(t, uploader.uploaded[0].Phone)
}

func TestParseConversionTimeShapes(t *testing.T) {
	assert.True(t, parseConversionTime("").IsZero())
	assert.True(t, parseConversionTime("not a time").IsZero())
	assert.Equal(t, time.Unix(1767225600, 0), parseConversionTime("1767225600"))

	parsed := parseConversionTime("2026-02-01T10:30:00Z")
	assert.Equal(t, time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC), parsed.UTC())
}
