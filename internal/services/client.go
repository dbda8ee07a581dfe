// Package services holds the call contracts for the external rights,
// extraction, and embedding services plus their HTTP implementations. All
// outbound traffic goes through the resilient httpclient.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/enliterate-io/enliterate/internal/config"
	"github.com/enliterate-io/enliterate/internal/httpclient"
)

// ErrUnavailable marks transport-level failures: timeouts, 5xx responses,
// open circuits. Stages treat these as retriable.
var ErrUnavailable = errors.New("service unavailable")

// ErrRejected marks permanent failures: authentication, unknown model,
// schema validation. Stages treat these as non-retriable.
var ErrRejected = errors.New("service rejected request")

// client is the shared JSON-over-HTTP plumbing for one service endpoint.
type client struct {
	endpoint config.ServiceEndpoint
	http     *httpclient.Client
	logger   *slog.Logger
}

func newClient(endpoint config.ServiceEndpoint, logger *slog.Logger) *client {
	cfg := httpclient.DefaultConfig()
	cfg.Logger = logger
	if endpoint.Timeout > 0 {
		cfg.Timeout = endpoint.Timeout
	}
	return &client{
		endpoint: endpoint,
		http:     httpclient.New(cfg),
		logger:   logger,
	}
}

// postJSON sends a JSON body and decodes the JSON response into out. The
// per-call deadline comes from the endpoint timeout.
func (c *client) postJSON(ctx context.Context, path string, in, out any) error {
	if c.endpoint.BaseURL == "" {
		return fmt.Errorf("%w: no base URL configured", ErrRejected)
	}
	if c.endpoint.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.endpoint.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	url := strings.TrimRight(c.endpoint.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.endpoint.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.endpoint.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("service call completed",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s returned %d", ErrRejected, path, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrRejected, err)
	}
	return nil
}
