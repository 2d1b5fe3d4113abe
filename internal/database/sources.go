package database

import "time"

// AlarmSource is a configured webhook ingestion endpoint. Each instance gets
// a UUID-keyed webhook URL and an optional shared secret the adapter checks.
type AlarmSource struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	UUID          string `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Name          string `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Type          string `gorm:"size:64;not null;index" json:"type"` // alertmanager, grafana, zabbix, generic
	WebhookSecret string `gorm:"type:text" json:"webhook_secret"`
	Environment   string `gorm:"size:64" json:"environment"`
	Enabled       bool   `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AlarmSource) TableName() string {
	return "alarm_sources"
}

// GetWebhookURL returns the webhook URL for this source instance
func (s *AlarmSource) GetWebhookURL(baseURL string) string {
	return baseURL + "/webhook/alarm/" + s.UUID
}
