// Package collycollector implements extract.Collector over plain HTTP using
// gocolly. One Collect call fetches one search page.
package collycollector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/collector/page"
	"github.com/JakeFAU/contact-harvester/internal/extract"
)

const defaultTimeout = 15 * time.Second

// ErrNeedsRender reports a page that produced no listings and looks like it
// is rendered client side.
var ErrNeedsRender = errors.New("page needs a browser to render")

// Config controls collector behavior.
type Config struct {
	// URLTemplate carries {keywords} and {location} placeholders.
	URLTemplate   string
	Selectors     page.Selectors
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
	// NeedsRender inspects pages that yielded no records. When it returns
	// true Collect fails with ErrNeedsRender.
	NeedsRender func(status int, body []byte) bool
}

// Collector fetches a directory page with Colly and extracts its listings.
type Collector struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type visitResult struct {
	url    string
	status int
	body   []byte
	err    error
}

// New builds a Collector. The URL template is validated eagerly.
func New(cfg Config, logger *zap.Logger) (*Collector, error) {
	if _, err := page.ExpandURL(cfg.URLTemplate, "", ""); err != nil {
		return nil, fmt.Errorf("colly collector: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	transport := newRobotsTolerantTransport(newHTTPTransport(), logger)
	c.WithTransport(transport)
	return &Collector{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
	}, nil
}

// Collect fetches the expanded search URL and returns its listings.
func (c *Collector) Collect(ctx context.Context, keywords, location string) ([]extract.RawRecord, error) {
	target, err := page.ExpandURL(c.cfg.URLTemplate, keywords, location)
	if err != nil {
		return nil, fmt.Errorf("expand url: %w", err)
	}
	var result visitResult
	collector := c.buildCollector(&result)
	if err := c.runCollector(ctx, collector, target, &result); err != nil {
		return nil, err
	}
	records, err := page.Extract(bytes.NewReader(result.body), c.cfg.Selectors)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", result.url, err)
	}
	if len(records) == 0 && c.cfg.NeedsRender != nil && c.cfg.NeedsRender(result.status, result.body) {
		return nil, fmt.Errorf("%s: %w", result.url, ErrNeedsRender)
	}
	c.logger.Debug("page collected",
		zap.String("url", result.url),
		zap.Int("status", result.status),
		zap.Int("bytes", len(result.body)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func (c *Collector) buildCollector(result *visitResult) *colly.Collector {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobots
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(c.transport)
	c.configureCollectorHooks(collector, result)
	return collector
}

func (c *Collector) configureCollectorHooks(hooks collectorHooks, result *visitResult) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range c.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	hooks.OnResponse(func(r *colly.Response) {
		result.url = r.Request.URL.String()
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		result.err = err
	})
}

func (c *Collector) runCollector(ctx context.Context, collector *colly.Collector, url string, result *visitResult) error {
	collector.Context = ctx
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly collect canceled: %w", ctx.Err())
	case err := <-done:
		if result.err != nil {
			return fmt.Errorf("colly response failed: %w", result.err)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ extract.Collector = (*Collector)(nil)
