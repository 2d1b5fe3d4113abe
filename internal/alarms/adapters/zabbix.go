package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alarmdeck/alarmdeck/internal/alarms"
	"github.com/alarmdeck/alarmdeck/internal/database"
)

// ZabbixAdapter handles Zabbix webhooks
type ZabbixAdapter struct {
	alarms.BaseAdapter
}

// NewZabbixAdapter creates a new Zabbix adapter
func NewZabbixAdapter() *ZabbixAdapter {
	return &ZabbixAdapter{
		BaseAdapter: alarms.BaseAdapter{SourceType: "zabbix"},
	}
}

// ZabbixPayload represents the webhook payload from Zabbix
type ZabbixPayload struct {
	EventTime         string `json:"event_time"`
	AlertName         string `json:"alert_name"`
	Severity          string `json:"severity"`
	Priority          string `json:"priority"`
	HostName          string `json:"host_name"`
	ServiceName       string `json:"service_name"`
	MetricName        string `json:"metric_name"`
	MetricValue       string `json:"metric_value"`
	TriggerExpression string `json:"trigger_expression"`
	EventID           string `json:"event_id"`
	EventStatus       string `json:"event_status"`
	RunbookURL        string `json:"runbook_url"`
}

// ValidateWebhookSecret validates the Zabbix webhook secret header
func (a *ZabbixAdapter) ValidateWebhookSecret(r *http.Request, source *database.AlarmSource) error {
	return alarms.CheckSharedSecret(r, source, "X-Zabbix-Secret")
}

// ParsePayload parses a Zabbix webhook payload into a normalized alarm
func (a *ZabbixAdapter) ParsePayload(body []byte, source *database.AlarmSource) ([]*database.Alarm, error) {
	var payload ZabbixPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse zabbix payload: %w", err)
	}
	if payload.EventStatus == "RESOLVED" || payload.EventStatus == "OK" {
		return nil, nil
	}
	return []*database.Alarm{a.parseAlert(payload, source)}, nil
}

func (a *ZabbixAdapter) parseAlert(payload ZabbixPayload, source *database.AlarmSource) *database.Alarm {
	title := payload.AlertName
	if title == "" {
		title = "Zabbix alert"
	}

	severity := payload.Severity
	if severity == "" {
		severity = payload.Priority
	}

	description := payload.TriggerExpression
	if payload.MetricName != "" {
		description = fmt.Sprintf("%s = %s", payload.MetricName, payload.MetricValue)
		if payload.TriggerExpression != "" {
			description += "\n" + payload.TriggerExpression
		}
	}

	out := &database.Alarm{
		Source:      a.SourceType,
		Title:       title,
		Description: description,
		Severity:    alarms.NormalizeSeverity(severity),
		Status:      database.AlarmStatusActive,
		Host:        payload.HostName,
		Service:     payload.ServiceName,
		Environment: source.Environment,
		Tags:        database.Labels{},
		Metadata: database.JSONB{
			"event_id":     payload.EventID,
			"metric_name":  payload.MetricName,
			"metric_value": payload.MetricValue,
		},
	}
	if payload.RunbookURL != "" {
		out.Metadata["runbook_url"] = payload.RunbookURL
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", payload.EventTime); err == nil {
		out.FirstOccurredAt = ts
		out.LastOccurredAt = ts
	}
	return out
}
