// Package client drives a running controller over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// StatusError is a non-2xx reply from the controller. Body holds the raw payload, which for a 502
// names the unavailable dependent.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("controller returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	client  *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("controller url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: strings.TrimSuffix(cfg.BaseURL, "/"), client: client}, nil
}

var scenarioPaths = map[string]string{
	"break":  "/break",
	"fix":    "/fix",
	"status": "/",
}

// Run triggers scenario ("break", "fix" or "status") and returns the indented JSON payload.
func (c *Client) Run(ctx context.Context, scenario string) ([]byte, error) {
	path, ok := scenarioPaths[scenario]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, scenario)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call controller: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read controller response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return nil, fmt.Errorf("controller returned invalid json: %w", err)
	}
	return out.Bytes(), nil
}
