package job

import (
	"context"
	"fmt"
	"strings"

	"github.com/guojianbin/TinyCron/internal/client"
)

// Requester sends webhook requests. *client.Client implements it.
type Requester interface {
	Do(ctx context.Context, req client.Request) (*client.Response, error)
}

// StatusError reports a webhook answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > tailBytes {
		body = body[:tailBytes] + "..."
	}
	if body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}

// HTTPJob calls a URL.
type HTTPJob struct {
	Base
	requester Requester
	request   client.Request
}

// NewHTTP creates a webhook job.
func NewHTTP(base Base, requester Requester, req client.Request) *HTTPJob {
	return &HTTPJob{Base: base, requester: requester, request: req}
}

func (j *HTTPJob) Run(ctx context.Context) error {
	resp, err := j.requester.Do(ctx, j.request)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return nil
}
