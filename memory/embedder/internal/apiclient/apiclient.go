// Package apiclient holds the JSON-over-HTTP plumbing shared by the
// API-backed embedders.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/becomeliminal/cortex/core"
)

// DefaultTimeout bounds a single embedding request.
const DefaultTimeout = 30 * time.Second

// Client posts JSON requests and classifies failures as core.ProviderError.
type Client struct {
	Provider string
	HTTP     *http.Client
	Headers  map[string]string
}

// New creates a client with the given per-request timeout.
func New(provider string, timeout time.Duration, headers map[string]string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Provider: provider,
		HTTP:     &http.Client{Timeout: timeout},
		Headers:  headers,
	}
}

// PostJSON sends in to url and decodes a 200 response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.Provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.Provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if isTimeout(err) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return core.NewProviderError(c.Provider, "embed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return core.NewProviderError(c.Provider, "embed", resp.StatusCode, fmt.Errorf("%s", bytes.TrimSpace(b)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.ProviderError{Provider: c.Provider, Op: "embed", Kind: core.ProviderBadResponse, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// BadResponse reports a structurally valid but unusable reply.
func (c *Client) BadResponse(format string, args ...any) error {
	return &core.ProviderError{Provider: c.Provider, Op: "embed", Kind: core.ProviderBadResponse, Err: fmt.Errorf(format, args...)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
