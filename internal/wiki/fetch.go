package wiki

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wikiexplorer",
		Subsystem: "wiki",
		Name:      "requests_total",
		Help:      "HTTP requests to the wiki, by status class.",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wikiexplorer",
		Subsystem: "wiki",
		Name:      "request_duration_seconds",
		Help:      "Latency of HTTP requests to the wiki.",
		Buckets:   prometheus.DefBuckets,
	})
)

// statusError is a non-200 reply.
type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.url, e.status)
}

const baseBackoff = 100 * time.Millisecond

// get fetches pageURL, retrying transient failures with exponential backoff
// and jitter. The caller closes the body of the returned response.
func (c *Client) get(ctx context.Context, pageURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		resp, err := c.do(ctx, pageURL)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransientError(err) || ctx.Err() != nil {
			break
		}
		c.opts.Logger.Debug("retrying wiki request",
			slog.String("url", pageURL),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	var se *statusError
	if errors.As(lastErr, &se) && se.status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pageURL)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, pageURL string) (*http.Response, error) {
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx, c.base.Host); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(req)
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		fetchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("GET %s: %w", pageURL, err)
	}
	fetchRequests.WithLabelValues(strconv.Itoa(resp.StatusCode/100) + "xx").Inc()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &statusError{url: pageURL, status: resp.StatusCode}
	}
	return resp, nil
}

func isTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// Dial and read failures: refused, reset, closed.
	var op *net.OpError
	if errors.As(err, &op) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
