// Package dependents calls the /config route of every service the controller drives and reports
// the version each one acknowledged.
package dependents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/frothly/episode-mesh/internal/apiversion"
)

var ErrUnavailable = errors.New("dependent unavailable")

// Error names the dependent that failed. It matches ErrUnavailable under errors.Is.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrUnavailable }

// Response is a dependent's reply, echoed into the controller payload.
type Response struct {
	StatusCode int                `json:"StatusCode"`
	Response   json.RawMessage    `json:"Response"`
	ApiVersion apiversion.Version `json:"-"`
}

type ClientConfig struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	client  *http.Client
	timeout time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{client: client, timeout: timeout}
}

// Configure calls the dependent's config route, passing v when non-nil. Any transport failure,
// timeout, non-2xx status or body without a readable ApiVersion is returned as *Error.
func (c *Client) Configure(ctx context.Context, dep Dependent, v *apiversion.Version) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := dep.ConfigURL()
	if v != nil {
		q := url.Values{apiversion.QueryParam: {v.String()}}
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Response{}, &Error{Name: dep.Name, Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, &Error{Name: dep.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, &Error{Name: dep.Name, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &Error{Name: dep.Name, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	body = bytes.TrimSpace(body)
	version, err := ParseApiVersion(body)
	if err != nil {
		return Response{}, &Error{Name: dep.Name, Err: err}
	}
	return Response{StatusCode: resp.StatusCode, Response: body, ApiVersion: version}, nil
}

// ParseApiVersion reads the ApiVersion field of a config body. It may be a JSON number or a
// numeric string.
func ParseApiVersion(body []byte) (apiversion.Version, error) {
	var doc struct {
		ApiVersion json.RawMessage `json:"ApiVersion"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, fmt.Errorf("decode config body: %w", err)
	}
	if len(doc.ApiVersion) == 0 || string(doc.ApiVersion) == "null" {
		return 0, fmt.Errorf("config body has no ApiVersion")
	}
	raw := string(doc.ApiVersion)
	var s string
	if err := json.Unmarshal(doc.ApiVersion, &s); err == nil {
		raw = s
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && f == float64(int64(f)) {
		raw = strconv.FormatInt(int64(f), 10)
	}
	return apiversion.Parse(raw)
}
