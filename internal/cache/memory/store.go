// Package memory provides an in-process result cache with lazy expiry.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/contact-harvester/internal/cache"
	"github.com/JakeFAU/contact-harvester/internal/extract"
)

type entry struct {
	records   []extract.RawRecord
	expiresAt time.Time
}

// Store keeps cache entries in a map guarded by a RWMutex. Expired entries are
// treated as misses and replaced by the next write; nothing evicts them
// proactively.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// NewWithClock constructs a Store that reads time from clock.
func NewWithClock(clock extract.Clock) *Store {
	s := New()
	if clock != nil {
		s.now = clock.Now
	}
	return s
}

// Get returns a copy of the cached records when a live entry exists.
func (s *Store) Get(_ context.Context, collectorID, keywords, location string) ([]extract.RawRecord, bool) {
	key := cache.Key(collectorID, keywords, location)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, false
	}
	return append([]extract.RawRecord(nil), e.records...), true
}

// Put stores a copy of records until ttl elapses.
func (s *Store) Put(
	_ context.Context,
	collectorID, keywords, location string,
	records []extract.RawRecord,
	ttl time.Duration,
) {
	key := cache.Key(collectorID, keywords, location)
	e := entry{
		records:   append([]extract.RawRecord(nil), records...),
		expiresAt: s.now().Add(cache.TTL(ttl)),
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

// Len reports the number of stored entries, including expired ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ extract.ResultCache = (*Store)(nil)
