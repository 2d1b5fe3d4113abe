package database

import "time"

// RuleType identifies the matching strategy of a noise reduction rule
type RuleType string

const (
	RuleTypeFrequencyLimit    RuleType = "frequency_limit"
	RuleTypeThresholdFilter   RuleType = "threshold_filter"
	RuleTypeSilenceWindow     RuleType = "silence_window"
	RuleTypeDependencyFilter  RuleType = "dependency_filter"
	RuleTypeDuplicateSuppress RuleType = "duplicate_suppress"
	RuleTypeTimeBased         RuleType = "time_based"
	RuleTypeCustom            RuleType = "custom_rule"
)

// IsValid reports whether t is a known rule type
func (t RuleType) IsValid() bool {
	switch t {
	case RuleTypeFrequencyLimit, RuleTypeThresholdFilter, RuleTypeSilenceWindow,
		RuleTypeDependencyFilter, RuleTypeDuplicateSuppress, RuleTypeTimeBased, RuleTypeCustom:
		return true
	}
	return false
}

// RuleAction is what happens to an alarm when a rule matches
type RuleAction string

const (
	ActionSuppress  RuleAction = "suppress"
	ActionDiscard   RuleAction = "discard"
	ActionDelay     RuleAction = "delay"
	ActionDowngrade RuleAction = "downgrade"
	ActionAggregate RuleAction = "aggregate"
	ActionForward   RuleAction = "forward"
)

// IsValid reports whether a is a known rule action
func (a RuleAction) IsValid() bool {
	switch a {
	case ActionSuppress, ActionDiscard, ActionDelay, ActionDowngrade, ActionAggregate, ActionForward:
		return true
	}
	return false
}

// NoiseRule is an operator-defined condition/action pair evaluated against
// incoming alarms. Rules run in ascending priority order and the first match
// wins. The engine only ever mutates HitCount and LastHitAt.
type NoiseRule struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Type        RuleType   `gorm:"type:varchar(32);not null;index" json:"type"`
	Action      RuleAction `gorm:"type:varchar(20);not null" json:"action"`
	Condition   JSONB      `gorm:"type:jsonb;not null" json:"condition"`
	Params      JSONB      `gorm:"type:jsonb" json:"params"`
	Priority    int        `gorm:"not null;default:100;index" json:"priority"`

	// No DB-side default: gorm omits zero-value fields with a default
	// tag on insert, which would flip a rule created disabled to enabled.
	Enabled bool `gorm:"index" json:"enabled"`

	// Optional effective time window; nil means always effective
	EffectiveFrom  *time.Time `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`

	HitCount  int64      `gorm:"not null;default:0" json:"hit_count"`
	LastHitAt *time.Time `json:"last_hit_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NoiseRule) TableName() string {
	return "noise_rules"
}

// EffectiveAt reports whether the rule is inside its effective window at t
func (r *NoiseRule) EffectiveAt(t time.Time) bool {
	if r.EffectiveFrom != nil && t.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveUntil != nil && t.After(*r.EffectiveUntil) {
		return false
	}
	return true
}

// RuleExecutionLog records one rule evaluation against one alarm. Rows are
// append-only and feed rule statistics.
type RuleExecutionLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	RuleID     uint       `gorm:"not null;index" json:"rule_id"`
	RuleName   string     `gorm:"size:128" json:"rule_name"`
	AlarmUUID  string     `gorm:"size:36;index" json:"alarm_uuid"`
	Matched    bool       `gorm:"not null" json:"matched"`
	Action     RuleAction `gorm:"type:varchar(20)" json:"action"`
	Details    string     `gorm:"type:text" json:"details"`
	DurationUs int64      `json:"duration_us"`
	Error      string     `gorm:"type:text" json:"error"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (RuleExecutionLog) TableName() string {
	return "rule_execution_logs"
}
