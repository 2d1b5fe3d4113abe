package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EscalationLevel is one tier of a responsibility chain
type EscalationLevel struct {
	Level          int      `json:"level"`
	DelayMinutes   int      `json:"delay_minutes"`
	TimeoutMinutes int      `json:"timeout_minutes"`
	Channels       []string `json:"channels"`
	AutoAssign     bool     `json:"auto_assign"`
}

// EscalationLevels is the ordered level list stored as JSONB
type EscalationLevels []EscalationLevel

// Scan implements the sql.Scanner interface
func (l *EscalationLevels) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l EscalationLevels) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// EscalationPolicy defines the responsibility chain for a team/severity pair.
// An empty Severity applies to all severities of that team.
type EscalationPolicy struct {
	ID       uint             `gorm:"primaryKey" json:"id"`
	Name     string           `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Team     string           `gorm:"size:128;index" json:"team"`
	Severity Severity         `gorm:"type:varchar(20);index" json:"severity"`
	Levels   EscalationLevels `gorm:"type:jsonb;not null" json:"levels"`
	Enabled  bool             `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EscalationPolicy) TableName() string {
	return "escalation_policies"
}

// Validate checks that the level chain is well-formed and strictly ordered
func (p *EscalationPolicy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name must not be empty")
	}
	if len(p.Levels) == 0 {
		return fmt.Errorf("policy %q has no levels", p.Name)
	}
	for i, lvl := range p.Levels {
		if lvl.Level != i+1 {
			return fmt.Errorf("policy %q: level %d out of order at position %d", p.Name, lvl.Level, i)
		}
		if lvl.TimeoutMinutes <= 0 {
			return fmt.Errorf("policy %q: level %d timeout must be positive", p.Name, lvl.Level)
		}
		if len(lvl.Channels) == 0 {
			return fmt.Errorf("policy %q: level %d has no notification channels", p.Name, lvl.Level)
		}
	}
	return nil
}

// DefaultEscalationLevels is the built-in chain used when no policy matches:
// L1 immediately with a 5 minute timeout, L2 after 5 minutes with a 10 minute
// timeout, L3 after 15 minutes with a 20 minute timeout.
func DefaultEscalationLevels() EscalationLevels {
	return EscalationLevels{
		{Level: 1, DelayMinutes: 0, TimeoutMinutes: 5, Channels: []string{"email", "sms"}, AutoAssign: true},
		{Level: 2, DelayMinutes: 5, TimeoutMinutes: 10, Channels: []string{"email", "sms", "phone"}},
		{Level: 3, DelayMinutes: 15, TimeoutMinutes: 20, Channels: []string{"email", "sms", "phone", "slack"}},
	}
}

// Team groups responders and owns a set of systems (services) it is
// responsible for. The escalation engine resolves an alarm to a team by
// matching the alarm's service against team systems.
type Team struct {
	ID      uint       `gorm:"primaryKey" json:"id"`
	Name    string     `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Systems StringList `gorm:"type:jsonb" json:"systems"`
	Enabled bool       `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Members []TeamMember `gorm:"foreignKey:TeamID" json:"members,omitempty"`
}

func (Team) TableName() string {
	return "teams"
}

// TeamMember is one responder inside a team. Level places the member in the
// escalation chain; Position orders members within a level; OnDuty marks the
// currently on-call member.
type TeamMember struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	TeamID   uint   `gorm:"not null;index" json:"team_id"`
	UserID   string `gorm:"size:128;not null" json:"user_id"`
	Name     string `gorm:"size:128" json:"name"`
	Email    string `gorm:"size:255" json:"email"`
	Phone    string `gorm:"size:64" json:"phone"`
	SlackID  string `gorm:"size:64" json:"slack_id"`
	Level    int    `gorm:"not null;default:1;index" json:"level"`
	Position int    `gorm:"not null;default:0" json:"position"`
	OnDuty   bool   `gorm:"default:false" json:"on_duty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TeamMember) TableName() string {
	return "team_members"
}
