package collector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	collycollector "github.com/JakeFAU/contact-harvester/internal/collector/colly"
	"github.com/JakeFAU/contact-harvester/internal/extract"
)

// promoting tries a plain HTTP collector first and falls back to a browser
// when the page turns out to be rendered client side.
type promoting struct {
	primary  extract.Collector
	fallback extract.Collector
	logger   *zap.Logger
}

func newPromoting(primary, fallback extract.Collector, logger *zap.Logger) *promoting {
	return &promoting{primary: primary, fallback: fallback, logger: logger}
}

func (p *promoting) Collect(ctx context.Context, keywords, location string) ([]extract.RawRecord, error) {
	records, err := p.primary.Collect(ctx, keywords, location)
	if !errors.Is(err, collycollector.ErrNeedsRender) {
		return records, err
	}
	p.logger.Debug("promoting to headless render", zap.Error(err))
	records, err = p.fallback.Collect(ctx, keywords, location)
	if err != nil {
		return nil, fmt.Errorf("headless render: %w", err)
	}
	return records, nil
}
