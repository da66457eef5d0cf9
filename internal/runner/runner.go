// Package runner executes a single collector invocation with caching,
// retries and record canonicalization.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/cache"
	"github.com/JakeFAU/contact-harvester/internal/clock/system"
	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/metrics"
	"github.com/JakeFAU/contact-harvester/internal/phone"
	"github.com/JakeFAU/contact-harvester/internal/retry"
)

// Catalog resolves collector ids.
type Catalog interface {
	Lookup(id string) (extract.Collector, bool)
}

// Config controls Runner behavior.
type Config struct {
	Retry    retry.Policy
	CacheTTL time.Duration
}

// Runner wraps every collector call. It never returns an error: failures
// are logged and surface as an empty result.
type Runner struct {
	catalog Catalog
	cache   extract.ResultCache
	limiter extract.Limiter
	clock   extract.Clock
	cfg     Config
	logger  *zap.Logger
}

var errNilResult = errors.New("collector returned no result")

// New constructs a Runner. A nil cache disables caching and a nil limiter
// disables rate limiting. A nil clock uses the system clock.
func New(
	catalog Catalog,
	resultCache extract.ResultCache,
	limiter extract.Limiter,
	clock extract.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if resultCache == nil {
		resultCache = cache.Noop{}
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.CacheTTL = cache.TTL(cfg.CacheTTL)
	return &Runner{
		catalog: catalog,
		cache:   resultCache,
		limiter: limiter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run returns the canonical records collector id produced for the query.
func (r *Runner) Run(ctx context.Context, collectorID, keywords, location string) []extract.Record {
	logger := r.logger.With(zap.String("collector", collectorID))

	if raw, ok := r.cache.Get(ctx, collectorID, keywords, location); ok {
		metrics.ObserveCacheLookup(collectorID, true)
		logger.Debug("cache hit", zap.Int("records", len(raw)))
		return r.canonicalize(collectorID, raw)
	}
	metrics.ObserveCacheLookup(collectorID, false)

	collector, ok := r.catalog.Lookup(collectorID)
	if !ok {
		logger.Error("collector not registered")
		return nil
	}

	metrics.IncActiveInvocations()
	defer metrics.DecActiveInvocations()

	policy := r.cfg.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("collector attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	raw, err := retry.Do(ctx, policy, func(ctx context.Context) ([]extract.RawRecord, error) {
		return r.attempt(ctx, collectorID, collector, keywords, location)
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			metrics.ObserveExhausted(collectorID)
		}
		logger.Error("collector gave up",
			zap.String("keywords", keywords),
			zap.String("location", location),
			zap.Error(err),
		)
		return nil
	}

	if len(raw) > 0 {
		r.cache.Put(ctx, collectorID, keywords, location, raw, r.cfg.CacheTTL)
	}
	return r.canonicalize(collectorID, raw)
}

func (r *Runner) attempt(
	ctx context.Context,
	collectorID string,
	collector extract.Collector,
	keywords, location string,
) (raw []extract.RawRecord, err error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, collectorID); err != nil {
			metrics.ObserveAttempt(collectorID, metrics.OutcomeError)
			return nil, err
		}
	}
	defer func() {
		if p := recover(); p != nil {
			metrics.ObserveAttempt(collectorID, metrics.OutcomePanic)
			raw, err = nil, fmt.Errorf("collector panic: %v", p)
		}
	}()

	raw, err = collector.Collect(ctx, keywords, location)
	switch {
	case err != nil:
		metrics.ObserveAttempt(collectorID, metrics.OutcomeError)
		return nil, fmt.Errorf("collect: %w", err)
	case raw == nil:
		metrics.ObserveAttempt(collectorID, metrics.OutcomeError)
		return nil, errNilResult
	}
	metrics.ObserveAttempt(collectorID, metrics.OutcomeSuccess)
	return raw, nil
}

func (r *Runner) canonicalize(collectorID string, raw []extract.RawRecord) []extract.Record {
	if len(raw) == 0 {
		return nil
	}
	now := r.clock.Now()
	out := make([]extract.Record, 0, len(raw))
	for _, rr := range raw {
		number, ok := phone.Normalize(rr.Phone)
		if !ok {
			continue
		}
		out = append(out, extract.Record{
			Phone:       number,
			Name:        phone.NormalizeText(rr.Name),
			Address:     phone.NormalizeText(rr.Address),
			Source:      collectorID,
			ExtractedAt: now,
		})
	}
	metrics.ObserveRecords(collectorID, len(out), len(raw)-len(out))
	return out
}
