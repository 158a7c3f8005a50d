// Package events posts deployment and rollback markers to the event ingest endpoint so an episode
// shows up next to the latency it causes.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	TypeDeployment = "Deployment"
	TypeRollback   = "Rollback"

	CategoryUser = "USER"

	// TokenHeader carries the ingest token.
	TokenHeader = "X-SF-Token"
)

type DeploymentEvent struct {
	Category   string            `json:"category"`
	EventType  string            `json:"eventType"`
	Dimensions map[string]string `json:"dimensions"`
	Properties map[string]string `json:"properties"`
	// Timestamp is in epoch milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Template holds the fixed dimensions and properties of the two episode events.
type Template struct {
	Environment     string
	Service         string
	Cluster         string
	DeployedBy      string
	RolledBackBy    string
	DeployVersion   string
	RollbackVersion string
}

func (t Template) Deployment(correlationID string, at time.Time) DeploymentEvent {
	return t.build(TypeDeployment, t.DeployedBy, t.DeployVersion, correlationID, at)
}

func (t Template) Rollback(correlationID string, at time.Time) DeploymentEvent {
	return t.build(TypeRollback, t.RolledBackBy, t.RollbackVersion, correlationID, at)
}

func (t Template) build(eventType, by, version, correlationID string, at time.Time) DeploymentEvent {
	props := map[string]string{
		"version":        version,
		"sf_environment": t.Cluster,
	}
	if correlationID != "" {
		props["correlation_id"] = correlationID
	}
	return DeploymentEvent{
		Category:  CategoryUser,
		EventType: eventType,
		Dimensions: map[string]string{
			"environment": t.Environment,
			"service":     t.Service,
			"cluster":     t.Cluster,
			"deployed_by": by,
		},
		Properties: props,
		Timestamp:  at.UnixMilli(),
	}
}

type EmitterConfig struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// Emitter posts events as a one-element JSON array.
type Emitter struct {
	url    string
	token  string
	client *http.Client
}

func NewEmitter(cfg EmitterConfig) (*Emitter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("event url required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("ingest token required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Emitter{url: cfg.URL, token: cfg.Token, client: client}, nil
}

func (e *Emitter) Emit(ctx context.Context, ev DeploymentEvent) error {
	body, err := json.Marshal([]DeploymentEvent{ev})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, e.token)
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("event ingest returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
