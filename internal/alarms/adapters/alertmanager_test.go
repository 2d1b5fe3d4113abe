package adapters

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

func alertmanagerSource() *database.AlarmSource {
	return &database.AlarmSource{
		UUID:        "am-1",
		Name:        "prod-alertmanager",
		Type:        "alertmanager",
		Environment: "production",
	}
}

func TestAlertmanagerParsePayload(t *testing.T) {
	adapter := NewAlertmanagerAdapter()
	payload := `{
		"version": "4",
		"status": "firing",
		"alerts": [
			{
				"status": "firing",
				"labels": {
					"alertname": "HighCPU",
					"severity": "critical",
					"instance": "web-01:9100",
					"job": "node",
					"category": "infrastructure"
				},
				"annotations": {
					"summary": "CPU usage above 95%",
					"description": "CPU has been above 95% for 10 minutes",
					"runbook_url": "https://wiki.example.com/runbooks/cpu"
				},
				"startsAt": "2025-06-01T10:00:00Z",
				"generatorURL": "http://prometheus/graph",
				"fingerprint": "abcdef123456"
			}
		]
	}`

	parsed, err := adapter.ParsePayload([]byte(payload), alertmanagerSource())
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 alarm, got %d", len(parsed))
	}

	alarm := parsed[0]
	if alarm.Source != "alertmanager" {
		t.Errorf("source = %q", alarm.Source)
	}
	if alarm.Title != "CPU usage above 95%" {
		t.Errorf("title = %q", alarm.Title)
	}
	if alarm.Severity != database.SeverityCritical {
		t.Errorf("severity = %q", alarm.Severity)
	}
	if alarm.Host != "web-01:9100" || alarm.Service != "node" {
		t.Errorf("host = %q, service = %q", alarm.Host, alarm.Service)
	}
	if alarm.Category != "infrastructure" {
		t.Errorf("category = %q", alarm.Category)
	}
	if alarm.Environment != "production" {
		t.Errorf("environment = %q", alarm.Environment)
	}
	if alarm.Tags["alertname"] != "HighCPU" {
		t.Errorf("tags = %v", alarm.Tags)
	}
	if alarm.Metadata["runbook_url"] != "https://wiki.example.com/runbooks/cpu" {
		t.Errorf("metadata = %v", alarm.Metadata)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !alarm.FirstOccurredAt.Equal(want) {
		t.Errorf("first occurred = %v, want %v", alarm.FirstOccurredAt, want)
	}
}

func TestAlertmanagerSkipsResolvedAlerts(t *testing.T) {
	adapter := NewAlertmanagerAdapter()
	payload := `{
		"alerts": [
			{"status": "resolved", "labels": {"alertname": "GoneAlready"}},
			{"status": "firing", "labels": {"alertname": "StillHere", "severity": "warning"}}
		]
	}`

	parsed, err := adapter.ParsePayload([]byte(payload), alertmanagerSource())
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected only the firing alert, got %d", len(parsed))
	}
	if parsed[0].Title != "StillHere" {
		t.Errorf("title = %q", parsed[0].Title)
	}
	if parsed[0].Severity != database.SeverityMedium {
		t.Errorf("warning must normalize to medium, got %q", parsed[0].Severity)
	}
}

func TestAlertmanagerTitleFallbacks(t *testing.T) {
	adapter := NewAlertmanagerAdapter()
	cases := []struct {
		name  string
		alert string
		want  string
	}{
		{"summary wins", `{"labels":{"alertname":"DiskFull"},"annotations":{"summary":"Disk almost full"}}`, "Disk almost full"},
		{"alertname fallback", `{"labels":{"alertname":"DiskFull"}}`, "DiskFull"},
		{"default", `{"labels":{}}`, "Alertmanager alert"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := `{"alerts":[` + tc.alert + `]}`
			parsed, err := adapter.ParsePayload([]byte(payload), alertmanagerSource())
			if err != nil {
				t.Fatalf("ParsePayload: %v", err)
			}
			if len(parsed) != 1 || parsed[0].Title != tc.want {
				t.Errorf("title = %q, want %q", parsed[0].Title, tc.want)
			}
		})
	}
}

func TestAlertmanagerMalformedPayload(t *testing.T) {
	adapter := NewAlertmanagerAdapter()
	_, err := adapter.ParsePayload([]byte(`{"alerts": [`), alertmanagerSource())
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !strings.Contains(err.Error(), "alertmanager") {
		t.Errorf("error %q should name the source", err.Error())
	}
}

func TestAlertmanagerSecretValidation(t *testing.T) {
	adapter := NewAlertmanagerAdapter()
	source := alertmanagerSource()
	source.WebhookSecret = "s3cret"

	r := httptest.NewRequest("POST", "/webhook/alarm/am-1", nil)
	r.Header.Set("X-Alertmanager-Secret", "s3cret")
	if err := adapter.ValidateWebhookSecret(r, source); err != nil {
		t.Errorf("matching secret rejected: %v", err)
	}

	r = httptest.NewRequest("POST", "/webhook/alarm/am-1", nil)
	r.Header.Set("X-Alertmanager-Secret", "wrong")
	if err := adapter.ValidateWebhookSecret(r, source); err == nil {
		t.Error("wrong secret accepted")
	}

	source.WebhookSecret = ""
	r = httptest.NewRequest("POST", "/webhook/alarm/am-1", nil)
	if err := adapter.ValidateWebhookSecret(r, source); err != nil {
		t.Errorf("source without a secret must accept: %v", err)
	}
}
