package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alarmdeck/alarmdeck/internal/alarms"
	"github.com/alarmdeck/alarmdeck/internal/database"
)

// GenericAdapter accepts alarms already shaped like our normalized record,
// for custom integrations that do their own mapping.
type GenericAdapter struct {
	alarms.BaseAdapter
}

// NewGenericAdapter creates a new generic webhook adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{
		BaseAdapter: alarms.BaseAdapter{SourceType: "generic"},
	}
}

// GenericPayload is the custom webhook body: a single alarm or a batch
type GenericPayload struct {
	Alarms []GenericAlarm `json:"alarms"`
	GenericAlarm
}

// GenericAlarm mirrors the normalized alarm fields
type GenericAlarm struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Severity    string                 `json:"severity"`
	Category    string                 `json:"category"`
	Host        string                 `json:"host"`
	Service     string                 `json:"service"`
	Environment string                 `json:"environment"`
	Tags        map[string]string      `json:"tags"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// ValidateWebhookSecret validates the shared secret header
func (a *GenericAdapter) ValidateWebhookSecret(r *http.Request, source *database.AlarmSource) error {
	return alarms.CheckSharedSecret(r, source, "X-Webhook-Secret")
}

// ParsePayload parses the custom webhook body into normalized alarms
func (a *GenericAdapter) ParsePayload(body []byte, source *database.AlarmSource) ([]*database.Alarm, error) {
	var payload GenericPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse generic payload: %w", err)
	}

	items := payload.Alarms
	if len(items) == 0 {
		if payload.Title == "" {
			return nil, fmt.Errorf("generic payload has no alarms")
		}
		items = []GenericAlarm{payload.GenericAlarm}
	}

	parsed := make([]*database.Alarm, 0, len(items))
	for _, item := range items {
		if item.Title == "" {
			return nil, fmt.Errorf("generic alarm is missing a title")
		}
		env := item.Environment
		if env == "" {
			env = source.Environment
		}
		parsed = append(parsed, &database.Alarm{
			Source:      a.SourceType,
			Title:       item.Title,
			Description: item.Description,
			Severity:    alarms.NormalizeSeverity(item.Severity),
			Category:    item.Category,
			Status:      database.AlarmStatusActive,
			Host:        item.Host,
			Service:     item.Service,
			Environment: env,
			Tags:        database.Labels(item.Tags),
			Metadata:    database.JSONB(item.Metadata),
		})
	}
	return parsed, nil
}
