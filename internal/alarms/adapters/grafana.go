package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alarmdeck/alarmdeck/internal/alarms"
	"github.com/alarmdeck/alarmdeck/internal/database"
)

// GrafanaAdapter handles Grafana alerting webhooks. Supports both unified
// alerting and the legacy single-alert format.
type GrafanaAdapter struct {
	alarms.BaseAdapter
}

// NewGrafanaAdapter creates a new Grafana adapter
func NewGrafanaAdapter() *GrafanaAdapter {
	return &GrafanaAdapter{
		BaseAdapter: alarms.BaseAdapter{SourceType: "grafana"},
	}
}

// GrafanaPayload represents the webhook payload from Grafana
type GrafanaPayload struct {
	// Unified alerting format
	Receiver string         `json:"receiver"`
	Status   string         `json:"status"`
	Alerts   []GrafanaAlert `json:"alerts"`

	// Legacy alerting format
	RuleName string `json:"ruleName"`
	State    string `json:"state"`
	Message  string `json:"message"`
	RuleURL  string `json:"ruleUrl"`
	Title    string `json:"title"`

	EvalMatches []struct {
		Value  float64           `json:"value"`
		Metric string            `json:"metric"`
		Tags   map[string]string `json:"tags"`
	} `json:"evalMatches"`
}

// GrafanaAlert represents a single alert in unified alerting
type GrafanaAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt"`
	Fingerprint  string            `json:"fingerprint"`
	GeneratorURL string            `json:"generatorURL"`
}

// ValidateWebhookSecret validates the Grafana webhook secret header
func (a *GrafanaAdapter) ValidateWebhookSecret(r *http.Request, source *database.AlarmSource) error {
	return alarms.CheckSharedSecret(r, source, "X-Grafana-Secret")
}

// ParsePayload parses a Grafana webhook payload into normalized alarms
func (a *GrafanaAdapter) ParsePayload(body []byte, source *database.AlarmSource) ([]*database.Alarm, error) {
	var payload GrafanaPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse grafana payload: %w", err)
	}

	var parsed []*database.Alarm
	if len(payload.Alerts) > 0 {
		for _, alert := range payload.Alerts {
			if strings.EqualFold(alert.Status, "resolved") {
				continue
			}
			parsed = append(parsed, a.parseUnifiedAlert(alert, source))
		}
		return parsed, nil
	}

	// Legacy format fires one alert per payload; "ok" states are skipped
	if strings.EqualFold(payload.State, "ok") {
		return nil, nil
	}
	return []*database.Alarm{a.parseLegacyAlert(payload, source)}, nil
}

func (a *GrafanaAdapter) parseUnifiedAlert(alert GrafanaAlert, source *database.AlarmSource) *database.Alarm {
	title := alert.Annotations["summary"]
	if title == "" {
		title = alert.Labels["alertname"]
	}
	if title == "" {
		title = "Grafana alert"
	}

	tags := make(database.Labels, len(alert.Labels))
	for k, v := range alert.Labels {
		tags[k] = v
	}

	out := &database.Alarm{
		Source:      a.SourceType,
		Title:       title,
		Description: alert.Annotations["description"],
		Severity:    alarms.NormalizeSeverity(alert.Labels["severity"]),
		Status:      database.AlarmStatusActive,
		Host:        alert.Labels["instance"],
		Service:     alert.Labels["job"],
		Environment: source.Environment,
		Tags:        tags,
		Metadata: database.JSONB{
			"generator_url":      alert.GeneratorURL,
			"source_fingerprint": alert.Fingerprint,
		},
	}
	if ts, err := time.Parse(time.RFC3339, alert.StartsAt); err == nil && !ts.IsZero() {
		out.FirstOccurredAt = ts
		out.LastOccurredAt = ts
	}
	return out
}

func (a *GrafanaAdapter) parseLegacyAlert(payload GrafanaPayload, source *database.AlarmSource) *database.Alarm {
	title := payload.Title
	if title == "" {
		title = payload.RuleName
	}
	if title == "" {
		title = "Grafana alert"
	}

	severity := database.SeverityMedium
	if strings.EqualFold(payload.State, "alerting") {
		severity = database.SeverityHigh
	}

	tags := database.Labels{}
	var host string
	for _, match := range payload.EvalMatches {
		for k, v := range match.Tags {
			tags[k] = v
			if k == "instance" || k == "host" {
				host = v
			}
		}
	}

	return &database.Alarm{
		Source:      a.SourceType,
		Title:       title,
		Description: payload.Message,
		Severity:    severity,
		Status:      database.AlarmStatusActive,
		Host:        host,
		Environment: source.Environment,
		Tags:        tags,
		Metadata:    database.JSONB{"rule_url": payload.RuleURL},
	}
}
