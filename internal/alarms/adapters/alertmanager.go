package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alarmdeck/alarmdeck/internal/alarms"
	"github.com/alarmdeck/alarmdeck/internal/database"
)

// AlertmanagerAdapter handles Prometheus Alertmanager webhooks
type AlertmanagerAdapter struct {
	alarms.BaseAdapter
}

// NewAlertmanagerAdapter creates a new Alertmanager adapter
func NewAlertmanagerAdapter() *AlertmanagerAdapter {
	return &AlertmanagerAdapter{
		BaseAdapter: alarms.BaseAdapter{SourceType: "alertmanager"},
	}
}

// AlertmanagerPayload represents the webhook payload from Alertmanager
type AlertmanagerPayload struct {
	Alerts            []AlertmanagerAlert `json:"alerts"`
	Status            string              `json:"status"`
	GroupLabels       map[string]string   `json:"groupLabels"`
	CommonLabels      map[string]string   `json:"commonLabels"`
	CommonAnnotations map[string]string   `json:"commonAnnotations"`
	ExternalURL       string              `json:"externalURL"`
	Version           string              `json:"version"`
	GroupKey          string              `json:"groupKey"`
}

// AlertmanagerAlert represents a single alert in the payload
type AlertmanagerAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
}

// ValidateWebhookSecret validates the webhook secret header
func (a *AlertmanagerAdapter) ValidateWebhookSecret(r *http.Request, source *database.AlarmSource) error {
	return alarms.CheckSharedSecret(r, source, "X-Alertmanager-Secret")
}

// ParsePayload parses an Alertmanager webhook payload into normalized alarms
func (a *AlertmanagerAdapter) ParsePayload(body []byte, source *database.AlarmSource) ([]*database.Alarm, error) {
	var payload AlertmanagerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse alertmanager payload: %w", err)
	}

	var parsed []*database.Alarm
	for _, alert := range payload.Alerts {
		// Resolved notifications are handled by the lifecycle, not ingested
		// as fresh alarms
		if alert.Status == "resolved" {
			continue
		}
		parsed = append(parsed, a.parseAlert(alert, source))
	}
	return parsed, nil
}

func (a *AlertmanagerAdapter) parseAlert(alert AlertmanagerAlert, source *database.AlarmSource) *database.Alarm {
	title := alert.Annotations["summary"]
	if title == "" {
		title = alert.Labels["alertname"]
	}
	if title == "" {
		title = "Alertmanager alert"
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
		Category:    alert.Labels["category"],
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
	if !alert.StartsAt.IsZero() {
		out.FirstOccurredAt = alert.StartsAt
		out.LastOccurredAt = alert.StartsAt
	}
	if runbook := alert.Annotations["runbook_url"]; runbook != "" {
		out.Metadata["runbook_url"] = runbook
	}
	return out
}
