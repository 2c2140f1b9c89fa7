// Package pagerduty triggers PagerDuty incidents for failed screening jobs.
package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/namescreen/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config configures the Events API client.
type Config struct {
	RoutingKey string
	Source     string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

// Client publishes trigger events via the Events API v2.
type Client struct {
	routingKey string
	source     string
	endpoint   string
	retryLimit int
	client     *http.Client
	now        func() time.Time
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		routingKey: key,
		source:     notify.Fallback(strings.TrimSpace(cfg.Source), "namescreen"),
		endpoint:   notify.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
		now:        time.Now,
	}, nil
}

// SendJobFailure submits a trigger event. Repeated failures of one job share
// a dedup key so they collapse into one incident.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return notify.PostJSON(ctx, c.client, c.endpoint, body, c.retryLimit, "pagerduty api")
}

func (c *Client) buildEvent(payload notify.JobFailurePayload) map[string]any {
	at := payload.OccurredAt
	if at.IsZero() {
		at = c.now()
	}

	custom := make(map[string]any, len(payload.Metadata)+4)
	for k, v := range payload.Metadata {
		custom[k] = v
	}
	custom["job_id"] = payload.JobID
	custom["input"] = payload.Input()
	custom["error"] = payload.Error
	custom["error_class"] = payload.ErrorClass

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    "screening:" + payload.JobID,
		"payload": map[string]any{
			"summary":        fmt.Sprintf("Screening job %s failed", notify.Fallback(payload.JobID, "unknown")),
			"severity":       strings.ToLower(notify.Fallback(payload.Severity, notify.SeverityCritical)),
			"source":         c.source,
			"component":      "screening-worker",
			"timestamp":      at.UTC().Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}
