package clicklog

import (
	"context"
	"strings"
	"time"

	"clickbridge_backend/platform/logger"
	"clickbridge_backend/platform/phone"
)

// IngestInput is a click beacon received from a public web page.
type IngestInput struct {
	GCLID          string
	GBRAID         string
	PagePath       string
	CorrelationKey string
}

// Service validates and normalizes click beacons before storing them.
type Service struct {
	store              *Store
	defaultPhoneRegion string
	log                *logger.Logger
}

// NewService creates the click ingest service.
func NewService(store *Store, defaultPhoneRegion string, log *logger.Logger) *Service {
	return &Service{store: store, defaultPhoneRegion: defaultPhoneRegion, log: log}
}

// Ingest records a click beacon. A beacon without any click identifier is an
// accepted no-op: the browser-side snippet already guards against sending
// empty payloads, and an attacker probing the endpoint learns nothing.
func (s *Service) Ingest(ctx context.Context, in IngestInput) error {
	gclid := strings.TrimSpace(in.GCLID)
	gbraid := strings.TrimSpace(in.GBRAID)
	if gclid == "" && gbraid == "" {
		s.log.Debug("click beacon without identifiers ignored")
		return nil
	}

	pagePath := strings.TrimSpace(in.PagePath)
	if pagePath == "" {
		pagePath = "/"
	}

	entry := Entry{
		CorrelationKey: s.correlationKey(in.CorrelationKey),
		GCLID:          gclid,
		GBRAID:         gbraid,
		PagePath:       pagePath,
		ObservedAt:     time.Now().UTC(),
	}

	if err := s.store.Put(ctx, entry); err != nil {
		return err
	}

	s.log.Info("click log stored",
		"correlation_key", entry.CorrelationKey,
		"page_path", entry.PagePath,
		"has_gclid", gclid != "",
		"has_gbraid", gbraid != "",
	)
	return nil
}

// correlationKey normalizes the beacon's sender identity into the same format
// the matcher derives from inbound messages: E.164 without separators when the
// key parses as a phone number, the trimmed raw value otherwise, and the
// shared fallback key when the beacon is anonymous.
func (s *Service) correlationKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return FallbackKey
	}
	return phone.NormalizeE164(trimmed, s.defaultPhoneRegion)
}
