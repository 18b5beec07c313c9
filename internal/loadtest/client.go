package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// client is a small JSON client for the service API.
type client struct {
	http *http.Client
	base string
}

func newClient(base string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &client{http: &http.Client{Timeout: timeout}, base: base}
}

// do sends body as JSON and decodes any response body into out. The
// status is returned even when it is not 2xx.
func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

// expect wraps do and fails on any status other than want.
func (c *client) expect(ctx context.Context, want int, method, path string, body, out any) error {
	status, err := c.do(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if status != want {
		return fmt.Errorf("%w: %s %s returned %d, want %d", ErrUnexpected, method, path, status, want)
	}
	return nil
}

type userResponse struct {
	UserID          string `json:"user_id"`
	Score           int64  `json:"score"`
	CompletedEvents int64  `json:"completed_events"`
}

type idResponse struct {
	EventID       string `json:"event_id"`
	ApplicationID string `json:"application_id"`
}

type completeResponse struct {
	Outcome  string `json:"outcome"`
	Credited int    `json:"credited"`
}

type rankingEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}
