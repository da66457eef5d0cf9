package collycollector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/retry"
)

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsTolerantTransport retries robots.txt probes that time out and falls
// back to an allow-all policy once the retries are spent. Directory sites with
// slow TLS edges would otherwise fail every search before it starts.
type robotsTolerantTransport struct {
	base   http.RoundTripper
	policy retry.Policy
	logger *zap.Logger
}

func newRobotsTolerantTransport(base http.RoundTripper, logger *zap.Logger) *robotsTolerantTransport {
	return &robotsTolerantTransport{
		base: base,
		policy: retry.Policy{
			MaxAttempts: 4,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    time.Second,
		},
		logger: logger,
	}
}

func (t *robotsTolerantTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}

	resp, err := retry.Do(req.Context(), t.policy, func(context.Context) (*http.Response, error) {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTransientTLSError(err) {
			return nil, retry.Permanent(fmt.Errorf("robots roundtrip non-transient: %w", err))
		}
		return nil, err
	})
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, retry.ErrExhausted):
		t.logger.Warn("robots.txt unreachable, assuming allow-all",
			zap.String("host", req.URL.Host),
			zap.Error(err),
		)
		return syntheticAllowAll(req), nil
	default:
		return nil, err
	}
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

func syntheticAllowAll(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
