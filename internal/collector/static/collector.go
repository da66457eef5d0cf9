// Package static provides a fixture collector that returns configured
// records. It backs demo deployments and exercises the retry path with
// scripted failures.
package static

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

// ErrScripted is returned for each scripted failure.
var ErrScripted = errors.New("static collector: scripted failure")

// Config describes the fixture.
type Config struct {
	Records []extract.RawRecord
	// Delay is applied to every call to mimic network latency.
	Delay time.Duration
	// FailAttempts makes the first N calls fail.
	FailAttempts int
}

// Collector returns Records regardless of the query.
type Collector struct {
	cfg   Config
	calls atomic.Int64
}

// New builds a static collector.
func New(cfg Config) *Collector {
	return &Collector{cfg: cfg}
}

// Collect waits for Delay and returns a copy of the configured records.
func (c *Collector) Collect(ctx context.Context, _, _ string) ([]extract.RawRecord, error) {
	call := c.calls.Add(1)
	if c.cfg.Delay > 0 {
		timer := time.NewTimer(c.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("static collect canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if call <= int64(c.cfg.FailAttempts) {
		return nil, fmt.Errorf("call %d: %w", call, ErrScripted)
	}
	out := slices.Clone(c.cfg.Records)
	if out == nil {
		out = []extract.RawRecord{}
	}
	return out, nil
}

// Calls reports how many times Collect ran.
func (c *Collector) Calls() int {
	return int(c.calls.Load())
}

var _ extract.Collector = (*Collector)(nil)
