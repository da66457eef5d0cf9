package extract

import (
	"context"
	"io"
	"time"
)

// Collector fetches raw candidate records for a query from one external source.
type Collector interface {
	Collect(ctx context.Context, keywords, location string) ([]RawRecord, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context, keywords, location string) ([]RawRecord, error)

// Collect calls f.
func (f CollectorFunc) Collect(ctx context.Context, keywords, location string) ([]RawRecord, error) {
	return f(ctx, keywords, location)
}

// ResultCache is a cache-aside store for collector output. Implementations
// must degrade backend failures to a miss or a dropped write.
type ResultCache interface {
	Get(ctx context.Context, collectorID, keywords, location string) ([]RawRecord, bool)
	Put(ctx context.Context, collectorID, keywords, location string, records []RawRecord, ttl time.Duration)
}

// Limiter gates collector calls per key.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes session notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session IDs.
type IDGenerator interface {
	NewID() (string, error)
}
