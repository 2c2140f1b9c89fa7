package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/target/namescreen/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.JobFailurePayload{
		JobID:      "job-123",
		Bucket:     "uploads",
		Key:        "batch.csv",
		Error:      "boom",
		ErrorClass: "csv_header",
		Metadata:   map[string]string{"job_id": "spoofed", "worker": "w-1"},
	})

	if event["dedup_key"] != "screening:job-123" {
		t.Fatalf("dedup key = %v", event["dedup_key"])
	}
	section, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if section["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", section["severity"])
	}
	if section["source"] != "namescreen" {
		t.Fatalf("expected default source, got %v", section["source"])
	}

	custom, ok := section["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}
	if custom["job_id"] != "job-123" {
		t.Fatalf("metadata must not override job_id, got %v", custom["job_id"])
	}
	if custom["input"] != "uploads/batch.csv" || custom["worker"] != "w-1" {
		t.Fatalf("unexpected custom details: %v", custom)
	}
}

func TestSendJobFailureUsesEndpoint(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, Client: srv.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["routing_key"] != "rk" || got["event_action"] != "trigger" {
		t.Fatalf("unexpected event: %v", got)
	}
}
