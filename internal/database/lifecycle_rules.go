package database

import (
	"fmt"
	"time"
)

// LifecycleAction is what the sweep does to a matched alarm
type LifecycleAction string

const (
	LifecycleActionAcknowledge LifecycleAction = "acknowledge"
	LifecycleActionEscalate    LifecycleAction = "escalate"
	LifecycleActionSLAWarning  LifecycleAction = "sla_warning"
	LifecycleActionClose       LifecycleAction = "close"
	LifecycleActionAssign      LifecycleAction = "assign"
)

// IsValid reports whether a is a known lifecycle action
func (a LifecycleAction) IsValid() bool {
	switch a {
	case LifecycleActionAcknowledge, LifecycleActionEscalate, LifecycleActionSLAWarning,
		LifecycleActionClose, LifecycleActionAssign:
		return true
	}
	return false
}

// LifecycleCondition is the typed condition payload of a lifecycle rule.
// All set fields must hold for the rule to match; zero values are ignored.
type LifecycleCondition struct {
	Severities             []Severity         `json:"severities,omitempty"`
	Statuses               []AlarmStatus      `json:"statuses,omitempty"`
	ProcessingStatuses     []ProcessingStatus `json:"processing_statuses,omitempty"`
	MinAgeMinutes          int                `json:"min_age_minutes,omitempty"`
	MinResolvedIdleMinutes int                `json:"min_resolved_idle_minutes,omitempty"`
	SLARemainingPercent    float64            `json:"sla_remaining_percent,omitempty"`
}

// Validate checks the condition shape
func (c *LifecycleCondition) Validate() error {
	for _, s := range c.Severities {
		if !s.IsValid() {
			return fmt.Errorf("lifecycle condition: invalid severity %q", s)
		}
	}
	if c.MinAgeMinutes < 0 || c.MinResolvedIdleMinutes < 0 {
		return fmt.Errorf("lifecycle condition: age thresholds must not be negative")
	}
	if c.SLARemainingPercent < 0 || c.SLARemainingPercent > 100 {
		return fmt.Errorf("lifecycle condition: sla_remaining_percent must be 0-100")
	}
	return nil
}

// LifecycleParams carries per-action parameters
type LifecycleParams struct {
	PolicyName    string   `json:"policy_name,omitempty"`    // escalate
	NotifyTargets []string `json:"notify_targets,omitempty"` // sla_warning
	Team          string   `json:"team,omitempty"`           // assign
}

// LifecycleRule is evaluated by the periodic sweep against every open alarm.
// Rules run in ascending priority order and, mirroring the noise reduction
// engine, only the first matching rule per alarm fires per sweep pass.
type LifecycleRule struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Priority  int             `gorm:"not null;default:100;index" json:"priority"`
	Enabled   bool            `gorm:"index" json:"enabled"`
	Condition JSONB           `gorm:"type:jsonb;not null" json:"condition"`
	Action    LifecycleAction `gorm:"type:varchar(20);not null" json:"action"`
	Params    JSONB           `gorm:"type:jsonb" json:"params"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LifecycleRule) TableName() string {
	return "lifecycle_rules"
}

// DecodeLifecycleCondition decodes and validates a rule's condition payload
func DecodeLifecycleCondition(rule *LifecycleRule) (*LifecycleCondition, error) {
	cond := &LifecycleCondition{}
	if err := decodeInto(rule.Condition, cond); err != nil {
		return nil, fmt.Errorf("decode lifecycle condition: %w", err)
	}
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	return cond, nil
}

// DecodeLifecycleParams decodes a rule's params payload
func DecodeLifecycleParams(rule *LifecycleRule) (*LifecycleParams, error) {
	params := &LifecycleParams{}
	if rule.Params == nil {
		return params, nil
	}
	if err := decodeInto(rule.Params, params); err != nil {
		return nil, fmt.Errorf("decode lifecycle params: %w", err)
	}
	return params, nil
}

// ValidateLifecycleRule checks a rule's full shape at creation/update time
func ValidateLifecycleRule(rule *LifecycleRule) error {
	if rule.Name == "" {
		return fmt.Errorf("lifecycle rule name must not be empty")
	}
	if !rule.Action.IsValid() {
		return fmt.Errorf("unknown lifecycle action %q", rule.Action)
	}
	if _, err := DecodeLifecycleCondition(rule); err != nil {
		return err
	}
	params, err := DecodeLifecycleParams(rule)
	if err != nil {
		return err
	}
	if rule.Action == LifecycleActionEscalate && params.PolicyName == "" {
		return fmt.Errorf("escalate lifecycle rule requires params.policy_name")
	}
	return nil
}
