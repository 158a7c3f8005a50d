package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frothly/episode-mesh/internal/apiversion"
)

type ReviewClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ReviewClient fetches sampled reviews from the review service.
type ReviewClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewReviewClient(cfg ReviewClientConfig) (*ReviewClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("review service base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ReviewClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
		timeout: timeout,
	}, nil
}

// StatusError is returned for a non-200 reply from the review service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("review service returned %d: %s", e.StatusCode, e.Body)
}

// Fetch returns one review sampled at version v.
func (c *ReviewClient) Fetch(ctx context.Context, v apiversion.Version) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{apiversion.QueryParam: {v.String()}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get_review?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("review build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("review request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("review read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	body = []byte(strings.TrimSpace(string(body)))
	if !json.Valid(body) {
		return nil, fmt.Errorf("review service returned invalid json")
	}
	return body, nil
}
