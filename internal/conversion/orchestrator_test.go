package conversion

import (
	"context"
	"fmt"
	"testing"

	"clickbridge_backend/internal/kommo"
	"clickbridge_backend/platform/apperr"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFieldIDs = config.KommoFieldIDs{
	GCLID:           101,
	GBRAID:          102,
	ConversionValue: 105,
	CurrencyCode:    106,
	ConversionTime:  107,
}

type fakeJournal struct {
	claimed    map[string]uuid.UUID
	uploaded   []uuid.UUID
	failed     map[uuid.UUID]string
	claimGCLID string
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{
		claimed: make(map[string]uuid.UUID),
		failed:  make(map[uuid.UUID]string),
	}
}

func journalKey(leadID int64, conversionType string) string {
	return fmt.Sprintf("%d/%s", leadID, conversionType)
}

func (f *fakeJournal) Claim(_ context.Context, leadID int64, conversionType, gclid, _ string) (uuid.UUID, bool, error) {
	key := journalKey(leadID, conversionType)
	if _, exists := f.claimed[key]; exists {
		return uuid.Nil, false, nil
	}
	id := uuid.New()
	f.claimed[key] = id
	f.claimGCLID = gclid
	return id, true, nil
}

func (f *fakeJournal) MarkUploaded(_ context.Context, id uuid.UUID) error {
	f.uploaded = append(f.uploaded, id)
	return nil
}

func (f *fakeJournal) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	f.failed[id] = reason
	return nil
}

type fakeCRM struct {
	leads       map[int64]*kommo.Lead
	contactInfo kommo.ContactInfo
	contactErr  error
}

func (f *fakeCRM) GetLead(_ context.Context, leadID int64) (*kommo.Lead, error) {
	lead, ok := f.leads[leadID]
	if !ok {
		return nil, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (f *fakeCRM) ContactInfo(_ context.Context, _ *kommo.Lead) (kommo.ContactInfo, error) {
	if f.contactErr != nil {
		return kommo.ContactInfo{}, f.contactErr
	}
	return f.contactInfo, nil
}

func (f *fakeCRM) FieldIDs() config.KommoFieldIDs {
	return testFieldIDs
}

type fakeMatcher struct {
	matched bool
	onMatch func()
	calls   int
}

func (f *fakeMatcher) MatchMessage(_ context.Context, _ int64, _ string) (bool, error) {
	f.calls++
	if f.matched && f.onMatch != nil {
		f.onMatch()
	}
	return f.matched, nil
}

type fakeQueue struct {
	enqueued []UploadPayload
	err      error
}

func (f *fakeQueue) EnqueueUpload(_ context.Context, payload UploadPayload) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, payload)
	return nil
}

type stageConfig map[string][]int64

func (s stageConfig) GetQualifyingStages() map[string][]int64 { return s }

func enrichedLead(leadID int64, gclid string) *kommo.Lead {
	return &kommo.Lead{
		ID:           leadID,
		CustomFields: []kommo.CustomFieldValue{kommo.TextField(testFieldIDs.GCLID, gclid)},
	}
}

func newTestOrchestrator(crm *fakeCRM, matcher *fakeMatcher, stages stageConfig) (*Orchestrator, *fakeJournal, *fakeQueue) {
	journal := newFakeJournal()
	queue := &fakeQueue{}
	orch := NewOrchestrator(journal, crm, matcher, queue, stages, logger.New("development"))
	return orch, journal, queue
}

func TestHandleStageChangeEnqueuesQualifiedConversion(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: enrichedLead(9001, "abc123")}}
	orch, journal, queue := newTestOrchestrator(crm, &fakeMatcher{}, stageConfig{
		"converted_lead": {142},
	})

	err := orch.HandleStageChange(context.Background(), StageChange{
		LeadID:         9001,
		StatusID:       142,
		ConversionType: "converted_lead",
	})
	require.NoError(t, err)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, int64(9001), queue.enqueued[0].LeadID)
	assert.Equal(t, "converted_lead", queue.enqueued[0].ConversionType)
	assert.Equal(t, "abc123", journal.claimGCLID)
}

func TestHandleStageChangeSkipsNonQualifyingStage(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: enrichedLead(9001, "abc123")}}
	orch, _, queue := newTestOrchestrator(crm, &fakeMatcher{}, stageConfig{
		"converted_lead": {142},
	})

	err := orch.HandleStageChange(context.Background(), StageChange{
		LeadID:         9001,
		StatusID:       999,
		ConversionType: "converted_lead",
	})
	require.NoError(t, err)
	assert.Empty(t, queue.enqueued)
}

func TestHandleStageChangeAcceptsAnyStageWhenUnconfigured(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: enrichedLead(9001, "abc123")}}
	orch, _, queue := newTestOrchestrator(crm, &fakeMatcher{}, stageConfig{})

	err := orch.HandleStageChange(context.Background(), StageChange{
		LeadID:         9001,
		StatusID:       999,
		ConversionType: "message_received",
	})
	require.NoError(t, err)
	assert.Len(t, queue.enqueued, 1)
}

func TestHandleStageChangeRejectsUnknownConversionType(t *testing.T) {
	orch, _, _ := newTestOrchestrator(&fakeCRM{}, &fakeMatcher{}, stageConfig{})

	err := orch.HandleStageChange(context.Background(), StageChange{
		LeadID:         9001,
		ConversionType: "bogus",
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestHandleStageChangeSuppressesDuplicate(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: enrichedLead(9001, "abc123")}}
	orch, _, queue := newTestOrchestrator(crm, &fakeMatcher{}, stageConfig{})

	change := StageChange{LeadID: 9001, ConversionType: "converted_lead"}
	require.NoError(t, orch.HandleStageChange(context.Background(), change))
	require.NoError(t, orch.HandleStageChange(context.Background(), change))

	assert.Len(t, queue.enqueued, 1)
}

func TestHandleStageChangeSkipsLeadWithoutClickIdentifiers(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: {ID: 9001}}}
	matcher := &fakeMatcher{}
	orch, _, queue := newTestOrchestrator(crm, matcher, stageConfig{})

	err := orch.HandleStageChange(context.Background(), StageChange{
		LeadID:         9001,
		ConversionType: "converted_lead",
	})
	require.NoError(t, err)

	assert.Empty(t, queue.enqueued)
	assert.Equal(t, 1, matcher.calls, "orchestrator must attempt a late match")
}

func TestHandleStageChangeUsesLateMatchEnrichment(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: {ID: 9001}}}
	matcher := &fakeMatcher{matched: true}
	matcher.onMatch = func() {
		crm.leads[9001] = enrichedLead(9001, "late-click")
	}
	orch, journal, queue := newTestOrchestrator(crm, matcher, stageConfig{})

	err := orch.HandleStageChange(context.Background(), StageChange{
		LeadID:         9001,
		Phone:          "+15551234567",
		ConversionType: "converted_lead",
	})
	require.NoError(t, err)

	assert.Len(t, queue.enqueued, 1)
	assert.Equal(t, "late-click", journal.claimGCLID)
}

func TestHandleStageChangeMarksFailedOnEnqueueError(t *testing.T) {
	crm := &fakeCRM{leads: map[int64]*kommo.Lead{9001: enrichedLead(9001, "abc123")}}
	journal := newFakeJournal()
	queue := &fakeQueue{err: assert.AnError}
	orch := NewOrchestrator(journal, crm, &fakeMatcher{}, queue, stageConfig{}, logger.New("development"))

	err := orch.HandleStageChange(context.Background(), StageChange{
		LeadID:         9001,
		ConversionType: "converted_lead",
	})
	require.Error(t, err)
	assert.Len(t, journal.failed, 1)
}
