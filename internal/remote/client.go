// Package remote posts attendance submissions to the sheet-backed endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/model"
)

// maxResponseBytes bounds how much of the response text is read.
const maxResponseBytes = 64 << 10

// Client calls the remote endpoint.
type Client struct {
	Endpoint string
	HTTP     *http.Client
	// DryRun skips the network and answers as the endpoint would on success.
	DryRun bool
}

// New creates a client with configurable timeout.
func New(endpoint string, timeout time.Duration, dryRun bool) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		Endpoint: endpoint,
		DryRun:   dryRun,
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

// Submit posts the payload and returns the response body as text. An error is
// returned only when no response was received; a non-2xx status still yields
// its body so the caller can decide on the success marker.
func (c *Client) Submit(ctx context.Context, p model.Payload) (string, error) {
	if c.DryRun {
		return fmt.Sprintf("Success: %d rows (dry run)", len(p.Students)), nil
	}
	if c.Endpoint == "" {
		return "", fmt.Errorf("endpoint url required")
	}

	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read endpoint response: %w", err)
	}
	return string(text), nil
}

// Health checks if the endpoint answers at all. Any HTTP response counts as
// reachable; only transport errors fail.
func (c *Client) Health(ctx context.Context) error {
	if c.DryRun {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("endpoint unavailable: %w", err)
	}
	resp.Body.Close()
	return nil
}
