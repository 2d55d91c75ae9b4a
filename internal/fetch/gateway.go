// Package fetch performs origin GET requests on behalf of the proxy,
// merging a fixed default header set with caller-supplied headers.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Cat-Ling/pp-stream/internal/metrics"
)

// defaultHeaders are sent on every origin request. Caller-supplied headers
// override them on key collision.
var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:137.0) Gecko/20100101 Firefox/137.0",
	"Accept":          "*/*",
	"Accept-Language": "en-US,en;q=0.5",
}

// UpstreamError reports a non-2xx origin response.
type UpstreamError struct {
	StatusCode int
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
}

// Gateway is the outbound HTTP client shared by all handlers.
// The metrics field is optional; nil disables origin metrics recording.
type Gateway struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewGateway creates a Gateway with connection pooling and timeouts.
func NewGateway(logger *slog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		logger:  logger.With("component", "fetch_gateway"),
		metrics: m,
	}
}

// Text fetches targetURL and returns the response body as text. Concurrent
// calls for the same URL and header set share a single origin request. The
// shared fetch is detached from any individual caller's context: one client
// disconnecting must not fail the fetch for the others coalesced onto the
// same key. The client timeout still bounds the detached request.
func (g *Gateway) Text(ctx context.Context, targetURL string, headers map[string]string) (string, error) {
	key := targetURL + "|" + fmt.Sprint(headers)
	ch := g.group.DoChan(key, func() (any, error) {
		resp, err := g.do(context.WithoutCancel(ctx), targetURL, headers)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: targetURL}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read origin response: %w", err)
		}
		return string(body), nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Open fetches targetURL and returns the response for streaming. The caller
// must close the body. Non-2xx responses are closed and returned as
// *UpstreamError.
func (g *Gateway) Open(ctx context.Context, targetURL string, headers map[string]string) (*http.Response, error) {
	resp, err := g.do(ctx, targetURL, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: targetURL}
	}
	return resp, nil
}

func (g *Gateway) do(ctx context.Context, targetURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}

	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	g.logger.Debug("origin request", "url", targetURL)

	start := time.Now()
	resp, err := g.client.Do(req)
	duration := time.Since(start).Seconds()

	if err != nil {
		if g.metrics != nil {
			g.metrics.OriginDuration.WithLabelValues("error").Observe(duration)
		}
		return nil, fmt.Errorf("origin request: %w", err)
	}

	if g.metrics != nil {
		g.metrics.OriginDuration.WithLabelValues("ok").Observe(duration)
		g.metrics.OriginTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}

	return resp, nil
}
