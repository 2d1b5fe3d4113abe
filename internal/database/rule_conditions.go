package database

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Typed condition payloads for each rule type. Conditions are stored as
// JSONB on the rule row but validated against these shapes at creation
// time, so the evaluation path never works off a free-form map.

// FrequencyLimitCondition matches once the count of same-group alarms
// inside the window reaches MaxCount.
type FrequencyLimitCondition struct {
	GroupBy       []string `json:"group_by"`
	WindowMinutes int      `json:"window_minutes"`
	MaxCount      int      `json:"max_count"`
}

// Validate checks the condition shape
func (c *FrequencyLimitCondition) Validate() error {
	if len(c.GroupBy) == 0 {
		return fmt.Errorf("frequency_limit: group_by must name at least one field")
	}
	for _, f := range c.GroupBy {
		if !isGroupableField(f) {
			return fmt.Errorf("frequency_limit: unknown group_by field %q", f)
		}
	}
	if c.WindowMinutes <= 0 {
		return fmt.Errorf("frequency_limit: window_minutes must be positive")
	}
	if c.MaxCount <= 0 {
		return fmt.Errorf("frequency_limit: max_count must be positive")
	}
	return nil
}

// ThresholdFilterCondition suppresses alarms whose identical title/host/service
// occurrence count inside the window is still below MinOccurrences. Optionally
// scoped to specific severities.
type ThresholdFilterCondition struct {
	WindowMinutes  int        `json:"window_minutes"`
	MinOccurrences int        `json:"min_occurrences"`
	Severities     []Severity `json:"severities,omitempty"`
}

// Validate checks the condition shape
func (c *ThresholdFilterCondition) Validate() error {
	if c.WindowMinutes <= 0 {
		return fmt.Errorf("threshold_filter: window_minutes must be positive")
	}
	if c.MinOccurrences <= 0 {
		return fmt.Errorf("threshold_filter: min_occurrences must be positive")
	}
	for _, s := range c.Severities {
		if !s.IsValid() {
			return fmt.Errorf("threshold_filter: invalid severity %q", s)
		}
	}
	return nil
}

// ClockRange is an HH:MM-HH:MM span. Ranges where Start > End wrap midnight.
type ClockRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validate checks both endpoints are HH:MM
func (r *ClockRange) Validate() error {
	if !clockRe.MatchString(r.Start) || !clockRe.MatchString(r.End) {
		return fmt.Errorf("clock range %q-%q is not HH:MM-HH:MM", r.Start, r.End)
	}
	return nil
}

// SilenceWindowCondition matches when the current wall-clock time falls inside
// one of the configured ranges and the alarm's system is affected. An empty
// AffectedSystems list means all systems.
type SilenceWindowCondition struct {
	Windows         []ClockRange `json:"windows"`
	Timezone        string       `json:"timezone,omitempty"`
	AffectedSystems []string     `json:"affected_systems,omitempty"`
}

// Validate checks the condition shape
func (c *SilenceWindowCondition) Validate() error {
	if len(c.Windows) == 0 {
		return fmt.Errorf("silence_window: at least one window required")
	}
	for i := range c.Windows {
		if err := c.Windows[i].Validate(); err != nil {
			return fmt.Errorf("silence_window: %w", err)
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("silence_window: invalid timezone %q", c.Timezone)
		}
	}
	return nil
}

// DependencyFilterCondition suppresses derivative child alerts while a parent
// service has a recent open alarm. Dependencies maps child service -> parents.
type DependencyFilterCondition struct {
	Dependencies          map[string][]string `json:"dependencies"`
	CascadeTimeoutMinutes int                 `json:"cascade_timeout_minutes"`
}

// Validate checks the condition shape
func (c *DependencyFilterCondition) Validate() error {
	if len(c.Dependencies) == 0 {
		return fmt.Errorf("dependency_filter: dependencies map must not be empty")
	}
	if c.CascadeTimeoutMinutes <= 0 {
		return fmt.Errorf("dependency_filter: cascade_timeout_minutes must be positive")
	}
	return nil
}

// DuplicateSuppressCondition matches when any recent alarm scores at or above
// the similarity threshold. Independent of the dedup engine; runs as a rule
// with its own threshold and window.
type DuplicateSuppressCondition struct {
	WindowMinutes       int     `json:"window_minutes"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// Validate checks the condition shape
func (c *DuplicateSuppressCondition) Validate() error {
	if c.WindowMinutes <= 0 {
		return fmt.Errorf("duplicate_suppress: window_minutes must be positive")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("duplicate_suppress: similarity_threshold must be in (0,1]")
	}
	return nil
}

// TimeBasedCondition blocks alarms outside AllowedHours or on blocked weekdays.
// Weekdays follow time.Weekday numbering (0=Sunday).
type TimeBasedCondition struct {
	AllowedHours    []int  `json:"allowed_hours,omitempty"`
	BlockedWeekdays []int  `json:"blocked_weekdays,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}

// Validate checks the condition shape
func (c *TimeBasedCondition) Validate() error {
	if len(c.AllowedHours) == 0 && len(c.BlockedWeekdays) == 0 {
		return fmt.Errorf("time_based: allowed_hours or blocked_weekdays required")
	}
	for _, h := range c.AllowedHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("time_based: hour %d out of range", h)
		}
	}
	for _, d := range c.BlockedWeekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("time_based: weekday %d out of range", d)
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("time_based: invalid timezone %q", c.Timezone)
		}
	}
	return nil
}

// Condition operators supported by custom rules
const (
	OpEq       = "eq"
	OpNe       = "ne"
	OpIn       = "in"
	OpNotIn    = "not_in"
	OpContains = "contains"
	OpRegex    = "regex"
	OpGt       = "gt"
	OpLt       = "lt"
	OpGte      = "gte"
	OpLte      = "lte"
)

var validOperators = map[string]bool{
	OpEq: true, OpNe: true, OpIn: true, OpNotIn: true, OpContains: true,
	OpRegex: true, OpGt: true, OpLt: true, OpGte: true, OpLte: true,
}

// FieldCondition is a single field/operator/value triple
type FieldCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Validate checks the triple shape
func (c *FieldCondition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("custom_rule: condition field must not be empty")
	}
	if !validOperators[c.Operator] {
		return fmt.Errorf("custom_rule: unknown operator %q", c.Operator)
	}
	if c.Operator == OpRegex {
		s, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("custom_rule: regex value must be a string")
		}
		if _, err := regexp.Compile(s); err != nil {
			return fmt.Errorf("custom_rule: invalid regex %q: %v", s, err)
		}
	}
	return nil
}

// ConditionGroup is an AND/OR tree of field conditions
type ConditionGroup struct {
	Operator   string           `json:"operator"` // "and" or "or"
	Conditions []FieldCondition `json:"conditions,omitempty"`
	Groups     []ConditionGroup `json:"groups,omitempty"`
}

// Validate checks the tree recursively
func (g *ConditionGroup) Validate() error {
	if g.Operator != "and" && g.Operator != "or" {
		return fmt.Errorf("custom_rule: group operator must be and/or, got %q", g.Operator)
	}
	if len(g.Conditions) == 0 && len(g.Groups) == 0 {
		return fmt.Errorf("custom_rule: empty condition group")
	}
	for i := range g.Conditions {
		if err := g.Conditions[i].Validate(); err != nil {
			return err
		}
	}
	for i := range g.Groups {
		if err := g.Groups[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CustomRuleCondition is either a declarative condition-group tree or, as a
// fallback, a single constrained "field op value" expression string. The
// expression form has no access to imports or execution primitives; it is
// parsed, never evaluated as code.
type CustomRuleCondition struct {
	Group      *ConditionGroup `json:"group,omitempty"`
	Expression string          `json:"expression,omitempty"`
}

var exprRe = regexp.MustCompile(`^\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s+(eq|ne|contains|regex|gt|lt|gte|lte)\s+(.+?)\s*$`)

// ParseExpression splits a constrained expression into a field condition
func ParseExpression(expr string) (*FieldCondition, error) {
	m := exprRe.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("custom_rule: expression %q is not of the form 'field op value'", expr)
	}
	cond := &FieldCondition{Field: m[1], Operator: m[2], Value: m[3]}
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	return cond, nil
}

// Validate checks that exactly one form is present and well-formed
func (c *CustomRuleCondition) Validate() error {
	if c.Group == nil && c.Expression == "" {
		return fmt.Errorf("custom_rule: group or expression required")
	}
	if c.Group != nil {
		if err := c.Group.Validate(); err != nil {
			return err
		}
	}
	if c.Expression != "" {
		if _, err := ParseExpression(c.Expression); err != nil {
			return err
		}
	}
	return nil
}

// Typed parameter payloads for the actions that need one

// DelayParams configures the delay action
type DelayParams struct {
	DelayMinutes int `json:"delay_minutes"`
}

// Validate checks the params shape
func (p *DelayParams) Validate() error {
	if p.DelayMinutes <= 0 {
		return fmt.Errorf("delay: delay_minutes must be positive")
	}
	return nil
}

// DowngradeParams configures the downgrade action
type DowngradeParams struct {
	Severity Severity `json:"severity"`
}

// Validate checks the params shape
func (p *DowngradeParams) Validate() error {
	if !p.Severity.IsValid() {
		return fmt.Errorf("downgrade: invalid severity %q", p.Severity)
	}
	return nil
}

// AggregateParams configures the aggregate action
type AggregateParams struct {
	GroupBy       []string `json:"group_by"`
	WindowMinutes int      `json:"window_minutes"`
}

// Validate checks the params shape
func (p *AggregateParams) Validate() error {
	if len(p.GroupBy) == 0 {
		return fmt.Errorf("aggregate: group_by must name at least one field")
	}
	for _, f := range p.GroupBy {
		if !isGroupableField(f) {
			return fmt.Errorf("aggregate: unknown group_by field %q", f)
		}
	}
	if p.WindowMinutes <= 0 {
		return fmt.Errorf("aggregate: window_minutes must be positive")
	}
	return nil
}

func isGroupableField(f string) bool {
	switch f {
	case "source", "title", "severity", "category", "host", "service", "environment":
		return true
	}
	return false
}

func decodeInto(payload JSONB, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// DecodeCondition decodes a rule's condition payload into its typed shape
func DecodeCondition(rule *NoiseRule) (interface{}, error) {
	var (
		cond interface{ Validate() error }
	)
	switch rule.Type {
	case RuleTypeFrequencyLimit:
		cond = &FrequencyLimitCondition{}
	case RuleTypeThresholdFilter:
		cond = &ThresholdFilterCondition{}
	case RuleTypeSilenceWindow:
		cond = &SilenceWindowCondition{}
	case RuleTypeDependencyFilter:
		cond = &DependencyFilterCondition{}
	case RuleTypeDuplicateSuppress:
		cond = &DuplicateSuppressCondition{}
	case RuleTypeTimeBased:
		cond = &TimeBasedCondition{}
	case RuleTypeCustom:
		cond = &CustomRuleCondition{}
	default:
		return nil, fmt.Errorf("unknown rule type %q", rule.Type)
	}
	if err := decodeInto(rule.Condition, cond); err != nil {
		return nil, fmt.Errorf("decode %s condition: %w", rule.Type, err)
	}
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	return cond, nil
}

// DecodeParams decodes a rule's action params into their typed shape. Rules
// whose action needs no params return nil.
func DecodeParams(rule *NoiseRule) (interface{}, error) {
	var params interface{ Validate() error }
	switch rule.Action {
	case ActionDelay:
		params = &DelayParams{}
	case ActionDowngrade:
		params = &DowngradeParams{}
	case ActionAggregate:
		params = &AggregateParams{}
	default:
		return nil, nil
	}
	if err := decodeInto(rule.Params, params); err != nil {
		return nil, fmt.Errorf("decode %s params: %w", rule.Action, err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// ValidateRule checks a rule's full shape: type, action, condition and params.
// Called at rule creation/update so evaluation never sees a malformed rule.
func ValidateRule(rule *NoiseRule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if !rule.Type.IsValid() {
		return fmt.Errorf("unknown rule type %q", rule.Type)
	}
	if !rule.Action.IsValid() {
		return fmt.Errorf("unknown rule action %q", rule.Action)
	}
	if _, err := DecodeCondition(rule); err != nil {
		return err
	}
	if _, err := DecodeParams(rule); err != nil {
		return err
	}
	return nil
}
