// Package cache holds the keying scheme and the disabled implementation of the
// collector result cache. Backends live in the memory and badger subpackages.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/hash/sha256"
)

// DefaultTTL is applied when callers pass a non-positive ttl.
const DefaultTTL = time.Hour

const keyPrefix = "results:"

var hasher = sha256.New()

// Key derives the storage key for a (collector, keywords, location) triple.
// Keywords and location are case-folded and trimmed so trivially different
// spellings of the same query share an entry.
func Key(collectorID, keywords, location string) string {
	digest := hasher.HashFields(normalize(keywords), normalize(location))
	return keyPrefix + collectorID + ":" + digest
}

// TTL resolves the effective expiry for a write.
func TTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Noop is the cache used when caching is disabled: every lookup misses and
// every write is dropped.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string, string, string) ([]extract.RawRecord, bool) {
	return nil, false
}

// Put discards the write.
func (Noop) Put(context.Context, string, string, string, []extract.RawRecord, time.Duration) {}

var _ extract.ResultCache = Noop{}
