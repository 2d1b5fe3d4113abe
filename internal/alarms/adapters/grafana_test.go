package adapters

import (
	"net/http/httptest"
	"testing"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

func grafanaSource() *database.AlarmSource {
	return &database.AlarmSource{
		UUID:        "gf-1",
		Name:        "prod-grafana",
		Type:        "grafana",
		Environment: "production",
	}
}

func TestGrafanaUnifiedAlerting(t *testing.T) {
	adapter := NewGrafanaAdapter()
	payload := `{
		"receiver": "alarmdeck",
		"status": "firing",
		"alerts": [
			{
				"status": "firing",
				"labels": {
					"alertname": "HighLatency",
					"severity": "warning",
					"instance": "api-03",
					"job": "api"
				},
				"annotations": {
					"summary": "p99 latency above 2s",
					"description": "The API p99 latency breached its threshold"
				},
				"startsAt": "2025-06-01T08:30:00Z",
				"fingerprint": "fedcba"
			},
			{
				"status": "resolved",
				"labels": {"alertname": "OldProblem"}
			}
		]
	}`

	parsed, err := adapter.ParsePayload([]byte(payload), grafanaSource())
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 alarm (resolved skipped), got %d", len(parsed))
	}

	alarm := parsed[0]
	if alarm.Title != "p99 latency above 2s" {
		t.Errorf("title = %q", alarm.Title)
	}
	if alarm.Severity != database.SeverityMedium {
		t.Errorf("severity = %q", alarm.Severity)
	}
	if alarm.Host != "api-03" || alarm.Service != "api" {
		t.Errorf("host = %q, service = %q", alarm.Host, alarm.Service)
	}
	if alarm.FirstOccurredAt.IsZero() {
		t.Error("startsAt must be carried into FirstOccurredAt")
	}
}

func TestGrafanaLegacyAlerting(t *testing.T) {
	adapter := NewGrafanaAdapter()
	payload := `{
		"ruleName": "Queue depth",
		"state": "alerting",
		"message": "Queue depth above 10k messages",
		"ruleUrl": "https://grafana.example.com/d/queues",
		"evalMatches": [
			{"value": 12000, "metric": "depth", "tags": {"instance": "mq-01", "queue": "billing"}}
		]
	}`

	parsed, err := adapter.ParsePayload([]byte(payload), grafanaSource())
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 alarm, got %d", len(parsed))
	}

	alarm := parsed[0]
	if alarm.Title != "Queue depth" {
		t.Errorf("title = %q", alarm.Title)
	}
	if alarm.Severity != database.SeverityHigh {
		t.Errorf("alerting state must map to high, got %q", alarm.Severity)
	}
	if alarm.Host != "mq-01" {
		t.Errorf("host = %q", alarm.Host)
	}
	if alarm.Tags["queue"] != "billing" {
		t.Errorf("tags = %v", alarm.Tags)
	}
	if alarm.Metadata["rule_url"] != "https://grafana.example.com/d/queues" {
		t.Errorf("metadata = %v", alarm.Metadata)
	}
}

func TestGrafanaLegacyOKStateIsSkipped(t *testing.T) {
	adapter := NewGrafanaAdapter()
	payload := `{"ruleName": "Queue depth", "state": "ok"}`

	parsed, err := adapter.ParsePayload([]byte(payload), grafanaSource())
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(parsed) != 0 {
		t.Fatalf("ok state must produce no alarms, got %d", len(parsed))
	}
}

func TestGrafanaMalformedPayload(t *testing.T) {
	adapter := NewGrafanaAdapter()
	if _, err := adapter.ParsePayload([]byte(`not json`), grafanaSource()); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestGrafanaSecretHeader(t *testing.T) {
	adapter := NewGrafanaAdapter()
	source := grafanaSource()
	source.WebhookSecret = "grafana-token"

	r := httptest.NewRequest("POST", "/webhook/alarm/gf-1", nil)
	r.Header.Set("Authorization", "Bearer grafana-token")
	if err := adapter.ValidateWebhookSecret(r, source); err != nil {
		t.Errorf("bearer form rejected: %v", err)
	}

	r = httptest.NewRequest("POST", "/webhook/alarm/gf-1", nil)
	if err := adapter.ValidateWebhookSecret(r, source); err == nil {
		t.Error("missing secret accepted")
	}
}
