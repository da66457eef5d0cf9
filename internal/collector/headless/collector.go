// Package headless implements extract.Collector for directories that build
// their listings with JavaScript. Pages are rendered in headless Chrome via
// chromedp and the resulting DOM is parsed like any other page.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/collector/page"
	"github.com/JakeFAU/contact-harvester/internal/extract"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	settleDelay              = 500 * time.Millisecond
)

// Config controls the behavior of the headless collector.
type Config struct {
	URLTemplate       string
	Selectors         page.Selectors
	UserAgent         string
	NavigationTimeout time.Duration
	// MaxParallel bounds concurrent browser tabs; zero means unbounded.
	MaxParallel int
	// WaitSelector is awaited before the DOM is captured. Defaults to body.
	WaitSelector string
}

// renderFunc loads url and returns the rendered document.
type renderFunc func(ctx context.Context, url string) (string, error)

// Collector renders search pages with headless Chrome.
type Collector struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	render      renderFunc
	logger      *zap.Logger
}

// New creates a collector backed by a dedicated Chrome allocator. Call Close
// to release the browser.
func New(cfg Config, logger *zap.Logger) (*Collector, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if _, err := page.ExpandURL(cfg.URLTemplate, "", ""); err != nil {
		return nil, fmt.Errorf("headless collector: %w", err)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if strings.TrimSpace(cfg.WaitSelector) == "" {
		cfg.WaitSelector = "body"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	c := &Collector{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}
	c.render = c.renderChrome
	return c, nil
}

// Close shuts down the browser allocator.
func (c *Collector) Close() error {
	c.allocCancel()
	return nil
}

// Collect renders the expanded search URL and returns its listings.
func (c *Collector) Collect(ctx context.Context, keywords, location string) ([]extract.RawRecord, error) {
	target, err := page.ExpandURL(c.cfg.URLTemplate, keywords, location)
	if err != nil {
		return nil, fmt.Errorf("expand url: %w", err)
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	start := time.Now()
	html, err := c.render(ctx, target)
	if err != nil {
		return nil, err
	}
	records, err := page.Extract(strings.NewReader(html), c.cfg.Selectors)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", target, err)
	}
	c.logger.Debug("page rendered",
		zap.String("url", target),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func (c *Collector) renderChrome(ctx context.Context, url string) (string, error) {
	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.NavigationTimeout)
	defer cancel()

	// Propagate caller cancellation into the browser tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	actions := []chromedp.Action{
		c.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady(c.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("chromedp run canceled: %w", ctxErr)
		}
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (c *Collector) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (c *Collector) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (c *Collector) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}

var _ extract.Collector = (*Collector)(nil)
