package clicklog

import (
	"context"
	"errors"
	"testing"
	"time"

	"clickbridge_backend/platform/logger"
)

func newTestService(t *testing.T) (*Service, *Store) {
	t.Helper()
	store, _ := newTestStore(t, 15*time.Minute)
	return NewService(store, "US", logger.New("development")), store
}

func TestIngestWithoutIdentifiersIsNoOp(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	err := service.Ingest(ctx, IngestInput{PagePath: "/promo", CorrelationKey: "+15551234567"})
	if err != nil {
		t.Fatalf("beacon without identifiers must not fail: %v", err)
	}

	if _, err := store.Get(ctx, "+15551234567"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no entry should have been written, got %v", err)
	}
	if _, err := store.Get(ctx, FallbackKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fallback key should stay empty, got %v", err)
	}
}

func TestIngestNormalizesCorrelationKey(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	err := service.Ingest(ctx, IngestInput{
		GCLID:          "abc123",
		PagePath:       "/promo",
		CorrelationKey: "(202) 555-0123",
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	got, err := store.Get(ctx, "+12025550123")
	if err != nil {
		t.Fatalf("entry should be stored under the E.164 key: %v", err)
	}
	if got.GCLID != "abc123" {
		t.Fatalf("unexpected gclid %q", got.GCLID)
	}
}

func TestIngestAnonymousBeaconUsesFallbackKey(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	err := service.Ingest(ctx, IngestInput{GBRAID: "br-1", PagePath: "/landing"})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	got, err := store.Get(ctx, FallbackKey)
	if err != nil {
		t.Fatalf("anonymous beacon should land on the fallback key: %v", err)
	}
	if got.GBRAID != "br-1" || got.PagePath != "/landing" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestIngestDefaultsEmptyPagePath(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	if err := service.Ingest(ctx, IngestInput{GCLID: "abc123"}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	got, err := store.Get(ctx, FallbackKey)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.PagePath != "/" {
		t.Fatalf("expected default page path, got %q", got.PagePath)
	}
}
