package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Labels is a string-to-string map stored as JSONB, used for alarm tags
type Labels map[string]string

// Scan implements the sql.Scanner interface
func (l *Labels) Scan(value interface{}) error {
	if value == nil {
		*l = make(map[string]string)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l Labels) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// StringList is a string slice stored as JSONB
type StringList []string

// Scan implements the sql.Scanner interface
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Contains reports whether v is present in the list
func (s StringList) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// Severity represents normalized alarm severity levels
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank orders severities from most to least severe
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// IsValid reports whether s is a known severity
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// MoreSevereThan reports whether s outranks other
func (s Severity) MoreSevereThan(other Severity) bool {
	return severityRank[s] < severityRank[other]
}

// AlarmStatus represents the surface status of an alarm
type AlarmStatus string

const (
	AlarmStatusActive       AlarmStatus = "active"
	AlarmStatusAcknowledged AlarmStatus = "acknowledged"
	AlarmStatusResolved     AlarmStatus = "resolved"
	AlarmStatusSuppressed   AlarmStatus = "suppressed"
	AlarmStatusClosed       AlarmStatus = "closed"
)

// Alarm is the normalized event record every core component operates on.
// Ingestion creates it; dedup mutates occurrence count and last-occurrence,
// noise reduction may downgrade severity, the lifecycle state machine moves
// status. The core never deletes alarms (archival is an external job).
type Alarm struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	UUID        string      `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Source      string      `gorm:"size:64;not null;index" json:"source"`
	Title       string      `gorm:"size:512;not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	Severity    Severity    `gorm:"type:varchar(20);not null;index" json:"severity"`
	Category    string      `gorm:"size:64" json:"category"`
	Status      AlarmStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	Host        string      `gorm:"size:255;index" json:"host"`
	Service     string      `gorm:"size:255;index" json:"service"`
	Environment string      `gorm:"size:64" json:"environment"`
	Tags        Labels      `gorm:"type:jsonb" json:"tags"`
	Metadata    JSONB       `gorm:"type:jsonb" json:"metadata"`

	Count           int       `gorm:"not null;default:1" json:"count"`
	FirstOccurredAt time.Time `gorm:"not null" json:"first_occurred_at"`
	LastOccurredAt  time.Time `gorm:"not null;index" json:"last_occurred_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Alarm) TableName() string {
	return "alarms"
}

// BeforeCreate fills occurrence timestamps when ingestion left them zero
func (a *Alarm) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if a.FirstOccurredAt.IsZero() {
		a.FirstOccurredAt = now
	}
	if a.LastOccurredAt.IsZero() {
		a.LastOccurredAt = a.FirstOccurredAt
	}
	if a.Count == 0 {
		a.Count = 1
	}
	return nil
}

// IsOpen reports whether the alarm still represents an unresolved problem
func (a *Alarm) IsOpen() bool {
	return a.Status == AlarmStatusActive || a.Status == AlarmStatusAcknowledged
}

// GetSeverityEmoji returns an emoji for the alarm severity, used by chat notifiers
func GetSeverityEmoji(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return ":red_circle:"
	case SeverityHigh:
		return ":large_orange_circle:"
	case SeverityMedium:
		return ":large_yellow_circle:"
	case SeverityLow:
		return ":large_blue_circle:"
	case SeverityInfo:
		return ":white_circle:"
	default:
		return ":white_circle:"
	}
}
