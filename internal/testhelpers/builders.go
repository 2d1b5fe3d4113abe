// Package testhelpers data builders for alarm, rule and processing records
package testhelpers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alarmdeck/alarmdeck/internal/alarms"
	"github.com/alarmdeck/alarmdeck/internal/database"
)

// AlarmBuilder builds Alarm instances for testing
type AlarmBuilder struct {
	alarm database.Alarm
}

// NewAlarmBuilder creates a new alarm builder with defaults
func NewAlarmBuilder() *AlarmBuilder {
	now := time.Now()
	return &AlarmBuilder{
		alarm: database.Alarm{
			UUID:            uuid.New().String(),
			Source:          "test",
			Title:           "CPU usage above threshold",
			Description:     "CPU usage has been above 90% for 5 minutes",
			Severity:        database.SeverityHigh,
			Status:          database.AlarmStatusActive,
			Host:            "web-01",
			Service:         "nginx",
			Environment:     "production",
			Tags:            database.Labels{},
			Count:           1,
			FirstOccurredAt: now,
			LastOccurredAt:  now,
		},
	}
}

// WithTitle sets the title
func (b *AlarmBuilder) WithTitle(title string) *AlarmBuilder {
	b.alarm.Title = title
	return b
}

// WithDescription sets the description
func (b *AlarmBuilder) WithDescription(desc string) *AlarmBuilder {
	b.alarm.Description = desc
	return b
}

// WithSource sets the source
func (b *AlarmBuilder) WithSource(source string) *AlarmBuilder {
	b.alarm.Source = source
	return b
}

// WithSeverity sets the severity
func (b *AlarmBuilder) WithSeverity(severity database.Severity) *AlarmBuilder {
	b.alarm.Severity = severity
	return b
}

// WithStatus sets the status
func (b *AlarmBuilder) WithStatus(status database.AlarmStatus) *AlarmBuilder {
	b.alarm.Status = status
	return b
}

// WithHost sets the host
func (b *AlarmBuilder) WithHost(host string) *AlarmBuilder {
	b.alarm.Host = host
	return b
}

// WithService sets the service
func (b *AlarmBuilder) WithService(service string) *AlarmBuilder {
	b.alarm.Service = service
	return b
}

// WithEnvironment sets the environment
func (b *AlarmBuilder) WithEnvironment(env string) *AlarmBuilder {
	b.alarm.Environment = env
	return b
}

// WithTag adds a tag
func (b *AlarmBuilder) WithTag(key, value string) *AlarmBuilder {
	if b.alarm.Tags == nil {
		b.alarm.Tags = database.Labels{}
	}
	b.alarm.Tags[key] = value
	return b
}

// WithOccurredAt sets both occurrence timestamps
func (b *AlarmBuilder) WithOccurredAt(t time.Time) *AlarmBuilder {
	b.alarm.FirstOccurredAt = t
	b.alarm.LastOccurredAt = t
	return b
}

// Build returns the constructed alarm
func (b *AlarmBuilder) Build() database.Alarm {
	return b.alarm
}

// BuildPtr returns a pointer to the constructed alarm
func (b *AlarmBuilder) BuildPtr() *database.Alarm {
	alarm := b.alarm
	return &alarm
}

// RuleBuilder builds NoiseRule instances for testing
type RuleBuilder struct {
	rule database.NoiseRule
}

// NewRuleBuilder creates a new rule builder with defaults
func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{
		rule: database.NoiseRule{
			Name:   "test-rule",
			Type:   database.RuleTypeFrequencyLimit,
			Action: database.ActionSuppress,
			Condition: database.JSONB{
				"group_by":       []interface{}{"host"},
				"window_minutes": float64(10),
				"max_count":      float64(3),
			},
			Priority: 100,
			Enabled:  true,
		},
	}
}

// WithName sets the rule name
func (b *RuleBuilder) WithName(name string) *RuleBuilder {
	b.rule.Name = name
	return b
}

// WithType sets the rule type
func (b *RuleBuilder) WithType(t database.RuleType) *RuleBuilder {
	b.rule.Type = t
	return b
}

// WithAction sets the rule action
func (b *RuleBuilder) WithAction(a database.RuleAction) *RuleBuilder {
	b.rule.Action = a
	return b
}

// WithCondition sets the condition payload
func (b *RuleBuilder) WithCondition(c database.JSONB) *RuleBuilder {
	b.rule.Condition = c
	return b
}

// WithParams sets the params payload
func (b *RuleBuilder) WithParams(p database.JSONB) *RuleBuilder {
	b.rule.Params = p
	return b
}

// WithPriority sets the priority
func (b *RuleBuilder) WithPriority(p int) *RuleBuilder {
	b.rule.Priority = p
	return b
}

// Disabled marks the rule disabled
func (b *RuleBuilder) Disabled() *RuleBuilder {
	b.rule.Enabled = false
	return b
}

// WithEffectiveWindow sets the validity window
func (b *RuleBuilder) WithEffectiveWindow(from, until *time.Time) *RuleBuilder {
	b.rule.EffectiveFrom = from
	b.rule.EffectiveUntil = until
	return b
}

// Build returns the constructed rule
func (b *RuleBuilder) Build() database.NoiseRule {
	return b.rule
}

// TeamBuilder builds Team instances with members for testing
type TeamBuilder struct {
	team    database.Team
	members []database.TeamMember
}

// NewTeamBuilder creates a new team builder with defaults
func NewTeamBuilder(name string) *TeamBuilder {
	return &TeamBuilder{
		team: database.Team{
			Name:    name,
			Enabled: true,
		},
	}
}

// WithSystems sets the systems this team is responsible for
func (b *TeamBuilder) WithSystems(systems ...string) *TeamBuilder {
	b.team.Systems = database.StringList(systems)
	return b
}

// WithMember adds a member at the given level
func (b *TeamBuilder) WithMember(userID string, level int, onDuty bool) *TeamBuilder {
	b.members = append(b.members, database.TeamMember{
		UserID:   userID,
		Name:     userID,
		Email:    userID + "@example.com",
		Level:    level,
		Position: len(b.members),
		OnDuty:   onDuty,
	})
	return b
}

// Team returns the constructed team without members
func (b *TeamBuilder) Team() database.Team {
	return b.team
}

// Members returns the constructed members, with TeamID set to the given ID
func (b *TeamBuilder) Members(teamID uint) []database.TeamMember {
	out := make([]database.TeamMember, len(b.members))
	copy(out, b.members)
	for i := range out {
		out[i].TeamID = teamID
	}
	return out
}

// MockAdapter implements alarms.Adapter for testing
type MockAdapter struct {
	SourceType           string
	ParsedAlarms         []*database.Alarm
	ParseError           error
	ValidateSecretErr    error
	ParsePayloadCalled   bool
	ValidateSecretCalled bool
}

// NewMockAdapter creates a new mock adapter
func NewMockAdapter(sourceType string) *MockAdapter {
	return &MockAdapter{SourceType: sourceType}
}

// GetSourceType returns the source type
func (m *MockAdapter) GetSourceType() string {
	return m.SourceType
}

// ValidateWebhookSecret validates the webhook secret
func (m *MockAdapter) ValidateWebhookSecret(r *http.Request, source *database.AlarmSource) error {
	m.ValidateSecretCalled = true
	return m.ValidateSecretErr
}

// ParsePayload parses the alarm payload
func (m *MockAdapter) ParsePayload(body []byte, source *database.AlarmSource) ([]*database.Alarm, error) {
	m.ParsePayloadCalled = true
	if m.ParseError != nil {
		return nil, m.ParseError
	}
	return m.ParsedAlarms, nil
}

var _ alarms.Adapter = (*MockAdapter)(nil)
