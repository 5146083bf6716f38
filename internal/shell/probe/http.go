// Package probe checks service health endpoints over HTTP.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnhealthy is returned when an endpoint answers with a non-2xx status.
var ErrUnhealthy = errors.New("endpoint unhealthy")

// HTTPChecker performs GET requests against health endpoints.
type HTTPChecker struct {
	client *http.Client
}

// NewHTTPChecker creates a checker whose requests time out after timeout.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPChecker{
		client: &http.Client{
			Timeout: timeout,
			// A redirect away from the health endpoint is not a healthy answer.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Check succeeds when url answers GET with a 2xx status.
func (c *HTTPChecker) Check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: GET %s returned %d", ErrUnhealthy, url, resp.StatusCode)
	}
	return nil
}
