package consumer

import (
	"bytes"
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

// ServiceError reports a non-2xx reply from an enrichment dependency.
type ServiceError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Body)
}

// HTTPClientConfig configures a client for one enrichment dependency.
type HTTPClientConfig struct {
	Name       string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type jsonClient struct {
	name    string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func newJSONClient(cfg HTTPClientConfig) (jsonClient, error) {
	if cfg.BaseURL == "" {
		return jsonClient{}, fmt.Errorf("%s base url required", cfg.Name)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return jsonClient{
		name:    cfg.Name,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
		timeout: timeout,
	}, nil
}

func (c jsonClient) do(ctx context.Context, method, target string, body []byte) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("%s build request: %w", c.name, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{Service: c.name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(out))}
	}
	return bytes.TrimSpace(out), nil
}

// LookupClient reads records from a lookup service.
type LookupClient struct {
	jsonClient
}

func NewLookupClient(cfg HTTPClientConfig) (*LookupClient, error) {
	c, err := newJSONClient(cfg)
	if err != nil {
		return nil, err
	}
	return &LookupClient{jsonClient: c}, nil
}

// Get calls GET <base><path>?<idField>=<id>, adding api_version when v is non-nil.
func (c *LookupClient) Get(ctx context.Context, path, idField, id string, v *apiversion.Version) (json.RawMessage, error) {
	q := url.Values{idField: {id}}
	if v != nil {
		q.Set(apiversion.QueryParam, v.String())
	}
	return c.do(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
}

// SentimentClient posts a review to the sentiment analyzer and returns its verdict document.
type SentimentClient struct {
	jsonClient
}

func NewSentimentClient(cfg HTTPClientConfig) (*SentimentClient, error) {
	c, err := newJSONClient(cfg)
	if err != nil {
		return nil, err
	}
	return &SentimentClient{jsonClient: c}, nil
}

func (c *SentimentClient) Analyze(ctx context.Context, review json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+"/", review)
}
