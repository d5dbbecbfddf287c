// Package httpclient constructs the outbound HTTP clients used to reach
// completion providers, with shared timeout and logging policies.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/copp1723/swarm-sub001/internal/logging"
)

// New builds an HTTP client with the given total request timeout and a
// transport that logs slow round trips.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &loggingRoundTripper{
			base:   http.DefaultTransport,
			logger: logging.OrNop(logger),
		},
	}
}

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

// slowRequestThreshold is the latency above which round trips are logged.
const slowRequestThreshold = 5 * time.Second

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)

	if elapsed > slowRequestThreshold {
		t.logger.Warn("Slow HTTP round trip: %s %s took %v", req.Method, req.URL.Host, elapsed)
	}
	if err != nil {
		t.logger.Debug("HTTP round trip failed: %s %s: %v", req.Method, req.URL.Host, err)
	}
	return resp, err
}

// ReadBody drains a response body, refusing bodies larger than limit bytes.
// A limit of zero or less reads without bound.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(resp.Body)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body larger than %d byte limit", limit)
	}
	return data, nil
}
