// Package matcher correlates inbound CRM messages with recently observed ad
// clicks and enriches the matched lead exactly once.
package matcher

import (
	"context"
	"errors"

	"clickbridge_backend/internal/clicklog"
	"clickbridge_backend/internal/kommo"
	"clickbridge_backend/platform/apperr"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/logger"
	"clickbridge_backend/platform/phone"
)

const sourcePaidClick = "cpc"

// ClickStore is the click-log lookup surface the matcher needs.
type ClickStore interface {
	Get(ctx context.Context, correlationKey string) (clicklog.Entry, error)
	Consume(ctx context.Context, correlationKey string) (clicklog.Entry, error)
}

// CRM is the lead read/patch surface the matcher needs.
type CRM interface {
	GetLead(ctx context.Context, leadID int64) (*kommo.Lead, error)
	UpdateLeadFields(ctx context.Context, leadID int64, fields []kommo.CustomFieldValue) error
	GetLatestIncomingLeadID(ctx context.Context) (int64, error)
	FieldIDs() config.KommoFieldIDs
}

// Service implements the message/lead matching flow.
type Service struct {
	store              ClickStore
	crm                CRM
	defaultPhoneRegion string
	log                *logger.Logger
}

// NewService creates a matcher service.
func NewService(store ClickStore, crm CRM, defaultPhoneRegion string, log *logger.Logger) *Service {
	return &Service{
		store:              store,
		crm:                crm,
		defaultPhoneRegion: defaultPhoneRegion,
		log:                log,
	}
}

// MatchMessage attempts to associate a recent click with the lead behind an
// inbound message. The sender phone is normalized to E.164, the same format
// the ingest side uses, so both ends of the correlation agree on the key.
//
// Absence of a click log is expected steady state (organic leads, expired
// TTL, already-enriched leads) and returns (false, nil). Enrichment is
// first-write-wins: a lead whose click identifier fields are already
// populated is never overwritten by a later match.
func (s *Service) MatchMessage(ctx context.Context, leadID int64, phoneNumber string) (bool, error) {
	log := s.log.WithContext(ctx)

	if leadID == 0 {
		// Some webhook shapes omit the lead; fall back to the newest
		// incoming lead in the target pipeline.
		latestID, err := s.crm.GetLatestIncomingLeadID(ctx)
		if apperr.Is(err, apperr.KindNotFound) {
			log.Debug("no incoming lead to match against")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		leadID = latestID
	}

	entry, ok, err := s.lookupClick(ctx, phoneNumber)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Debug("no click log for message", "lead_id", leadID)
		return false, nil
	}

	lead, err := s.crm.GetLead(ctx, leadID)
	if apperr.Is(err, apperr.KindNotFound) {
		log.Warn("matched click but lead is unknown", "lead_id", leadID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// The source field doubles as the enrichment-state marker: it is written
	// on every enrichment, so checking it (plus the identifier fields, for
	// accounts without a source field) keeps the policy first-write-wins.
	fieldIDs := s.crm.FieldIDs()
	if lead.FieldValue(fieldIDs.Source) != "" ||
		lead.FieldValue(fieldIDs.GCLID) != "" ||
		lead.FieldValue(fieldIDs.GBRAID) != "" {
		log.Debug("lead already enriched, keeping first match", "lead_id", leadID)
		return false, nil
	}

	fields := s.enrichmentFields(entry, phoneNumber, fieldIDs)
	if len(fields) == 0 {
		return false, nil
	}

	if err := s.crm.UpdateLeadFields(ctx, leadID, fields); err != nil {
		return false, err
	}

	log.Info("lead enriched from click log",
		"lead_id", leadID,
		"correlation_key", entry.CorrelationKey,
		"page_path", entry.PagePath,
	)
	return true, nil
}

// lookupClick checks the phone-derived key first, then consumes the shared
// fallback key so an anonymous click is attributed to at most one lead.
func (s *Service) lookupClick(ctx context.Context, phoneNumber string) (clicklog.Entry, bool, error) {
	if phoneNumber != "" {
		key := phone.NormalizeE164(phoneNumber, s.defaultPhoneRegion)
		entry, err := s.store.Get(ctx, key)
		if err == nil {
			return entry, true, nil
		}
		if !errors.Is(err, clicklog.ErrNotFound) {
			return clicklog.Entry{}, false, err
		}
	}

	entry, err := s.store.Consume(ctx, clicklog.FallbackKey)
	if errors.Is(err, clicklog.ErrNotFound) {
		return clicklog.Entry{}, false, nil
	}
	if err != nil {
		return clicklog.Entry{}, false, err
	}
	return entry, true, nil
}

func (s *Service) enrichmentFields(entry clicklog.Entry, phoneNumber string, fieldIDs config.KommoFieldIDs) []kommo.CustomFieldValue {
	var fields []kommo.CustomFieldValue

	if entry.GCLID != "" && fieldIDs.GCLID != 0 {
		fields = append(fields, kommo.TextField(fieldIDs.GCLID, entry.GCLID))
	}
	if entry.GBRAID != "" && fieldIDs.GBRAID != 0 {
		fields = append(fields, kommo.TextField(fieldIDs.GBRAID, entry.GBRAID))
	}
	if len(fields) == 0 {
		return nil
	}

	if fieldIDs.PagePath != 0 {
		fields = append(fields, kommo.TextField(fieldIDs.PagePath, entry.PagePath))
	}
	if fieldIDs.Source != 0 {
		fields = append(fields, kommo.TextField(fieldIDs.Source, sourcePaidClick))
	}
	if fieldIDs.Country != 0 {
		if country := phone.CountryName(phoneNumber, s.defaultPhoneRegion); country != "" {
			fields = append(fields, kommo.TextField(fieldIDs.Country, country))
		}
	}

	return fields
}
