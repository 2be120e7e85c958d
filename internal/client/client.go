// Package client is the outbound HTTP client used by webhook jobs.
//
// It uses hashicorp/go-retryablehttp so a single failed ping to a health
// check endpoint does not mark the whole run as failed; connection errors
// and 5xx responses are retried with jittered linear backoff.
//
// Usage:
//
//	c := client.New(logger)
//	resp, err := c.Do(ctx, client.Request{Method: "POST", URL: url})
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/guojianbin/TinyCron/internal/version"
)

// maxBodyBytes bounds how much of a response body is kept.
const maxBodyBytes = 4096

// Request describes one webhook call.
type Request struct {
	Method  string
	URL     string
	Body    string
	Headers map[string]string
}

// Response is the status and (truncated) body of a completed call.
type Response struct {
	StatusCode int
	Body       string
	Duration   time.Duration
}

// Client sends webhook requests with retry.
type Client struct {
	retry  *retryablehttp.Client
	logger *slog.Logger
}

// New creates a Client configured with:
//   - RetryMax: 3 retries
//   - RetryWaitMin: 1 second
//   - RetryWaitMax: 10 seconds
//   - Backoff: Linear jitter
//   - Timeout: 30 seconds per attempt
func New(logger *slog.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Backoff = retryablehttp.LinearJitterBackoff

	// Disable retryablehttp's internal logging - we use slog instead
	retryClient.Logger = nil

	// Hand back the last response instead of a generic error when
	// retries run out, so callers can report the status code.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	retryClient.HTTPClient.Timeout = 30 * time.Second
	retryClient.HTTPClient.Transport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		IdleConnTimeout:     60 * time.Second,
		MaxIdleConnsPerHost: 2,
	}

	c := &Client{
		retry:  retryClient,
		logger: logger.With(slog.String("component", "http-client")),
	}

	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				slog.String("url", req.URL.Redacted()),
				slog.Int("attempt", attempt),
			)
		}
	}

	return c
}

// SetRetry overrides the retry policy. Tests use it to avoid real sleeps.
func (c *Client) SetRetry(max int, waitMin, waitMax time.Duration) {
	c.retry.RetryMax = max
	c.retry.RetryWaitMin = waitMin
	c.retry.RetryWaitMax = waitMax
}

// Do sends req. Any response, whatever its status, is returned without
// error once retries are exhausted; callers decide what counts as failure.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "tinycron/"+version.Version+" ("+runtime.GOOS+"-"+runtime.GOARCH+")")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.retry.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", httpReq.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(data),
		Duration:   time.Since(start),
	}, nil
}
