// Package clicklog provides the click-log bounded context: a TTL-bounded
// store of recently observed ad-click identifiers and the public ingest
// endpoint that feeds it.
package clicklog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no live entry exists for a correlation key.
// Callers treat it as steady state, not a failure.
var ErrNotFound = errors.New("click log entry not found")

// FallbackKey is the correlation key used when a beacon carries no usable
// sender identity. It holds the single most recent unkeyed click, matching
// the latest-click attribution model.
const FallbackKey = "latest"

const keyPrefix = "clicklog:"

// Entry is a recently observed ad click. Expiry is owned by the store, not
// the entry: redis drops the record once the configured TTL elapses.
type Entry struct {
	CorrelationKey string    `json:"correlationKey"`
	GCLID          string    `json:"gclid,omitempty"`
	GBRAID         string    `json:"gbraid,omitempty"`
	PagePath       string    `json:"pagePath"`
	ObservedAt     time.Time `json:"observedAt"`
}

// Store is the redis-backed click-log store. Put and Get/Consume are the only
// shared-mutation points across invocations; redis guarantees per-key atomicity,
// so concurrent writers resolve to last-put-wins and readers never observe a
// partial entry.
type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewStore creates a click-log store with the given entry TTL.
func NewStore(rdb redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Put stores an entry under its correlation key, overwriting any prior entry
// for the same key and resetting the TTL (most recent click wins).
func (s *Store) Put(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal click log entry: %w", err)
	}

	if err := s.rdb.Set(ctx, keyPrefix+entry.CorrelationKey, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store click log entry: %w", err)
	}
	return nil
}

// Get returns the live entry for a correlation key, or ErrNotFound. The entry
// is retained until its TTL expires, so repeat messages from the same contact
// can re-match; first-write-wins on the lead side prevents double enrichment.
func (s *Store) Get(ctx context.Context, correlationKey string) (Entry, error) {
	payload, err := s.rdb.Get(ctx, keyPrefix+correlationKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read click log entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode click log entry: %w", err)
	}
	return entry, nil
}

// Consume returns the live entry for a correlation key and removes it, so the
// click is attributed at most once. Used for the fallback key, where one
// anonymous click must not enrich every subsequent lead.
func (s *Store) Consume(ctx context.Context, correlationKey string) (Entry, error) {
	payload, err := s.rdb.GetDel(ctx, keyPrefix+correlationKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("consume click log entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode click log entry: %w", err)
	}
	return entry, nil
}
