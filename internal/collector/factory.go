package collector

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	collycollector "github.com/JakeFAU/contact-harvester/internal/collector/colly"
	"github.com/JakeFAU/contact-harvester/internal/collector/detector"
	"github.com/JakeFAU/contact-harvester/internal/collector/headless"
	"github.com/JakeFAU/contact-harvester/internal/collector/page"
	"github.com/JakeFAU/contact-harvester/internal/collector/static"
	"github.com/JakeFAU/contact-harvester/internal/extract"
)

// Kind selects the collector transport.
type Kind string

// Supported kinds.
const (
	KindColly    Kind = "colly"
	KindHeadless Kind = "headless"
	KindStatic   Kind = "static"
)

// RecordSpec is a fixture record for static collectors.
type RecordSpec struct {
	Phone   string `mapstructure:"phone"`
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
}

// Spec declares one collector.
type Spec struct {
	ID              string            `mapstructure:"id"`
	Kind            Kind              `mapstructure:"kind"`
	URLTemplate     string            `mapstructure:"url_template"`
	CardSelector    string            `mapstructure:"card_selector"`
	NameSelector    string            `mapstructure:"name_selector"`
	PhoneSelector   string            `mapstructure:"phone_selector"`
	AddressSelector string            `mapstructure:"address_selector"`
	WaitSelector    string            `mapstructure:"wait_selector"`
	MaxCards        int               `mapstructure:"max_cards"`
	UserAgent       string            `mapstructure:"user_agent"`
	Headers         map[string]string `mapstructure:"headers"`
	RespectRobots   bool              `mapstructure:"respect_robots"`
	// PromoteHeadless re-renders colly pages that look client rendered.
	PromoteHeadless bool `mapstructure:"promote_headless"`
	// SmallPageBytes tunes the client render detector.
	SmallPageBytes int          `mapstructure:"small_page_bytes"`
	TimeoutSeconds int          `mapstructure:"timeout_seconds"`
	MaxParallel    int          `mapstructure:"max_parallel"`
	DelayMS        int          `mapstructure:"delay_ms"`
	FailAttempts   int          `mapstructure:"fail_attempts"`
	Records        []RecordSpec `mapstructure:"records"`
}

// Validate checks the fields required by the collector kind.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("collector id is required")
	}
	switch s.Kind {
	case KindColly, KindHeadless:
		if _, err := page.ExpandURL(s.URLTemplate, "", ""); err != nil {
			return fmt.Errorf("collector %s: %w", s.ID, err)
		}
	case KindStatic:
	default:
		return fmt.Errorf("collector %s: unknown kind %q", s.ID, s.Kind)
	}
	if s.TimeoutSeconds < 0 || s.MaxCards < 0 || s.MaxParallel < 0 || s.DelayMS < 0 || s.FailAttempts < 0 ||
		s.SmallPageBytes < 0 {
		return fmt.Errorf("collector %s: numeric settings must be >= 0", s.ID)
	}
	return nil
}

func (s Spec) selectors() page.Selectors {
	return page.Selectors{
		Card:     s.CardSelector,
		Name:     s.NameSelector,
		Phone:    s.PhoneSelector,
		Address:  s.AddressSelector,
		MaxCards: s.MaxCards,
	}
}

func (s Spec) timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func (s Spec) headers() http.Header {
	if len(s.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(s.Headers))
	for k, v := range s.Headers {
		h.Set(k, v)
	}
	return h
}

// Built is a constructed collector and its release hook.
type Built struct {
	ID        string
	Collector extract.Collector
	Close     func() error
}

// Build constructs the collector described by spec.
func Build(spec Spec, logger *zap.Logger) (Built, error) {
	if err := spec.Validate(); err != nil {
		return Built{}, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("collector", spec.ID), zap.String("kind", string(spec.Kind)))
	noClose := func() error { return nil }

	switch spec.Kind {
	case KindColly:
		cfg := collycollector.Config{
			URLTemplate:   spec.URLTemplate,
			Selectors:     spec.selectors(),
			UserAgent:     spec.UserAgent,
			RespectRobots: spec.RespectRobots,
			Timeout:       spec.timeout(),
			Headers:       spec.headers(),
		}
		if !spec.PromoteHeadless {
			c, err := collycollector.New(cfg, logger)
			if err != nil {
				return Built{}, err
			}
			return Built{ID: spec.ID, Collector: c, Close: noClose}, nil
		}
		cfg.NeedsRender = detector.New(spec.SmallPageBytes).NeedsRender
		c, err := collycollector.New(cfg, logger)
		if err != nil {
			return Built{}, err
		}
		h, err := buildHeadless(spec, logger)
		if err != nil {
			return Built{}, err
		}
		return Built{ID: spec.ID, Collector: newPromoting(c, h, logger), Close: h.Close}, nil
	case KindHeadless:
		c, err := buildHeadless(spec, logger)
		if err != nil {
			return Built{}, err
		}
		return Built{ID: spec.ID, Collector: c, Close: c.Close}, nil
	default:
		records := make([]extract.RawRecord, 0, len(spec.Records))
		for _, r := range spec.Records {
			records = append(records, extract.RawRecord{Phone: r.Phone, Name: r.Name, Address: r.Address})
		}
		c := static.New(static.Config{
			Records:      records,
			Delay:        time.Duration(spec.DelayMS) * time.Millisecond,
			FailAttempts: spec.FailAttempts,
		})
		return Built{ID: spec.ID, Collector: c, Close: noClose}, nil
	}
}

func buildHeadless(spec Spec, logger *zap.Logger) (*headless.Collector, error) {
	c, err := headless.New(headless.Config{
		URLTemplate:       spec.URLTemplate,
		Selectors:         spec.selectors(),
		UserAgent:         spec.UserAgent,
		NavigationTimeout: spec.timeout(),
		MaxParallel:       spec.MaxParallel,
		WaitSelector:      spec.WaitSelector,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("headless collector %s: %w", spec.ID, err)
	}
	return c, nil
}

// Registrar is the subset of the registry used while wiring collectors.
type Registrar interface {
	Register(id string, c extract.Collector) error
}

// RegisterAll builds every spec and registers it. On failure, collectors
// built so far are closed. The returned func releases all collectors.
func RegisterAll(reg Registrar, specs []Spec, logger *zap.Logger) (func() error, error) {
	var built []Built
	closeAll := func() error {
		var errs []error
		for _, b := range built {
			if err := b.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close collector %s: %w", b.ID, err))
			}
		}
		return errors.Join(errs...)
	}
	for _, spec := range specs {
		b, err := Build(spec, logger)
		if err != nil {
			_ = closeAll()
			return nil, err
		}
		built = append(built, b)
		if err := reg.Register(b.ID, b.Collector); err != nil {
			_ = closeAll()
			return nil, fmt.Errorf("register collector %s: %w", b.ID, err)
		}
	}
	return closeAll, nil
}
