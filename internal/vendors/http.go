package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "unified-analytics/1.0"
)

// Option configures a vendor client.
type Option func(*client)

// WithHTTPClient overrides the HTTP client used to reach the vendor.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.http = hc
	}
}

type client struct {
	http *http.Client
}

func newClient(opts []Option) client {
	c := client{http: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// postJSON sends payload to endpoint and returns an error for transport
// failures and non-2xx answers. The response body is discarded.
func (c client) postJSON(ctx context.Context, endpoint, userAgent string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
