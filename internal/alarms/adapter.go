package alarms

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// Adapter parses one vendor's webhook payload into normalized alarms. The
// core pipeline only ever sees database.Alarm values; everything vendor
// specific stays behind this interface.
type Adapter interface {
	// GetSourceType returns the source type name (e.g. "alertmanager")
	GetSourceType() string

	// ValidateWebhookSecret validates the incoming webhook using the
	// source instance's secret
	ValidateWebhookSecret(r *http.Request, source *database.AlarmSource) error

	// ParsePayload parses the raw request body into normalized alarms.
	// A single webhook can carry multiple alarms (Alertmanager groups).
	ParsePayload(body []byte, source *database.AlarmSource) ([]*database.Alarm, error)
}

// BaseAdapter provides the shared source-type plumbing
type BaseAdapter struct {
	SourceType string
}

// GetSourceType returns the source type name
func (b *BaseAdapter) GetSourceType() string {
	return b.SourceType
}

// CheckSharedSecret compares a header (or bearer token) against the source's
// configured secret. A source without a secret accepts every request.
func CheckSharedSecret(r *http.Request, source *database.AlarmSource, header string) error {
	if source.WebhookSecret == "" {
		return nil
	}
	secret := r.Header.Get(header)
	if secret == "" {
		secret = r.Header.Get("Authorization")
	}
	if secret != source.WebhookSecret && secret != "Bearer "+source.WebhookSecret {
		return fmt.Errorf("invalid webhook secret")
	}
	return nil
}

// severityAliases maps common vendor severity spellings onto our levels
var severityAliases = map[string]database.Severity{
	"critical":  database.SeverityCritical,
	"disaster":  database.SeverityCritical,
	"emergency": database.SeverityCritical,
	"fatal":     database.SeverityCritical,
	"page":      database.SeverityCritical,
	"high":      database.SeverityHigh,
	"error":     database.SeverityHigh,
	"major":     database.SeverityHigh,
	"medium":    database.SeverityMedium,
	"warning":   database.SeverityMedium,
	"warn":      database.SeverityMedium,
	"average":   database.SeverityMedium,
	"low":       database.SeverityLow,
	"minor":     database.SeverityLow,
	"info":      database.SeverityInfo,
	"ok":        database.SeverityInfo,
	"none":      database.SeverityInfo,
}

// NormalizeSeverity maps a vendor severity string onto a normalized level,
// defaulting to medium when the value is unknown
func NormalizeSeverity(severity string) database.Severity {
	if s, ok := severityAliases[strings.ToLower(strings.TrimSpace(severity))]; ok {
		return s
	}
	return database.SeverityMedium
}
