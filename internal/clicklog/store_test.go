package clicklog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, ttl), mr
}

func TestStorePutGet(t *testing.T) {
	store, _ := newTestStore(t, 15*time.Minute)
	ctx := context.Background()

	entry := Entry{
		CorrelationKey: "+15551234567",
		GCLID:          "abc123",
		PagePath:       "/promo",
		ObservedAt:     time.Now().UTC(),
	}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := store.Get(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.GCLID != "abc123" || got.PagePath != "/promo" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	// Get retains the entry for repeat matching.
	if _, err := store.Get(ctx, "+15551234567"); err != nil {
		t.Fatalf("second get should still find the entry: %v", err)
	}
}

func TestStoreGetMissingKey(t *testing.T) {
	store, _ := newTestStore(t, 15*time.Minute)

	_, err := store.Get(context.Background(), "+15550000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreEntryExpiresAfterTTL(t *testing.T) {
	store, mr := newTestStore(t, 15*time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, Entry{CorrelationKey: "+15551234567", GCLID: "abc123"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	mr.FastForward(16 * time.Minute)

	_, err := store.Get(ctx, "+15551234567")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired entry should be invisible, got %v", err)
	}
}

func TestStorePutOverwritesAndResetsTTL(t *testing.T) {
	store, mr := newTestStore(t, 15*time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, Entry{CorrelationKey: "+15551234567", GCLID: "first"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	mr.FastForward(10 * time.Minute)

	if err := store.Put(ctx, Entry{CorrelationKey: "+15551234567", GCLID: "second"}); err != nil {
		t.Fatalf("second put failed: %v", err)
	}

	// 10 + 10 minutes is past the original TTL but inside the reset one.
	mr.FastForward(10 * time.Minute)

	got, err := store.Get(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("entry should survive after TTL reset: %v", err)
	}
	if got.GCLID != "second" {
		t.Fatalf("most recent click should win, got gclid %q", got.GCLID)
	}
}

func TestStoreConsumeRemovesEntry(t *testing.T) {
	store, _ := newTestStore(t, 15*time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, Entry{CorrelationKey: FallbackKey, GBRAID: "br-1"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := store.Consume(ctx, FallbackKey)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if got.GBRAID != "br-1" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	_, err = store.Consume(ctx, FallbackKey)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("consumed entry should be gone, got %v", err)
	}
}
