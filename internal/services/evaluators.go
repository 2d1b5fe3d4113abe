package services

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/alarms"
	"github.com/alarmdeck/alarmdeck/internal/database"
)

// matchRule dispatches to the matcher for the rule's type. It returns whether
// the rule matched, a human-readable detail string, and any evaluation error.
func (s *NoiseService) matchRule(rule *database.NoiseRule, alarm *database.Alarm) (bool, string, error) {
	cond, err := database.DecodeCondition(rule)
	if err != nil {
		return false, "", err
	}

	switch c := cond.(type) {
	case *database.FrequencyLimitCondition:
		return s.matchFrequencyLimit(c, alarm)
	case *database.ThresholdFilterCondition:
		return s.matchThresholdFilter(c, alarm)
	case *database.SilenceWindowCondition:
		return s.matchSilenceWindow(c, alarm)
	case *database.DependencyFilterCondition:
		return s.matchDependencyFilter(c, alarm)
	case *database.DuplicateSuppressCondition:
		return s.matchDuplicateSuppress(c, alarm)
	case *database.TimeBasedCondition:
		return s.matchTimeBased(c, alarm)
	case *database.CustomRuleCondition:
		return s.matchCustomRule(c, alarm)
	default:
		return false, "", fmt.Errorf("no matcher for rule type %q", rule.Type)
	}
}

// matchFrequencyLimit matches once the count of same-group alarms inside the
// window has reached the configured maximum
func (s *NoiseService) matchFrequencyLimit(cond *database.FrequencyLimitCondition, alarm *database.Alarm) (bool, string, error) {
	cutoff := s.now().Add(-time.Duration(cond.WindowMinutes) * time.Minute)

	query := s.db.Model(&database.Alarm{}).Where("created_at > ?", cutoff)
	for _, field := range cond.GroupBy {
		query = query.Where(field+" = ?", alarmFieldValue(alarm, field))
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, "", err
	}

	if count >= int64(cond.MaxCount) {
		return true, fmt.Sprintf("%d alarms for group %s in the last %dm (limit %d)",
			count, strings.Join(cond.GroupBy, "+"), cond.WindowMinutes, cond.MaxCount), nil
	}
	return false, "", nil
}

// matchThresholdFilter matches (filters out) alarms whose occurrence count
// for the identical title/host/service inside the window, current occurrence
// included, is still below the minimum
func (s *NoiseService) matchThresholdFilter(cond *database.ThresholdFilterCondition, alarm *database.Alarm) (bool, string, error) {
	if len(cond.Severities) > 0 && !severityIn(alarm.Severity, cond.Severities) {
		return false, "", nil
	}

	cutoff := s.now().Add(-time.Duration(cond.WindowMinutes) * time.Minute)

	var count int64
	err := s.db.Model(&database.Alarm{}).
		Where("created_at > ?", cutoff).
		Where("title = ? AND host = ? AND service = ?", alarm.Title, alarm.Host, alarm.Service).
		Count(&count).Error
	if err != nil {
		return false, "", err
	}

	occurrences := count + 1
	if occurrences < int64(cond.MinOccurrences) {
		return true, fmt.Sprintf("only %d occurrences in the last %dm (minimum %d)",
			occurrences, cond.WindowMinutes, cond.MinOccurrences), nil
	}
	return false, "", nil
}

// matchSilenceWindow matches when the current wall-clock time is inside a
// configured range and the alarm's system is affected
func (s *NoiseService) matchSilenceWindow(cond *database.SilenceWindowCondition, alarm *database.Alarm) (bool, string, error) {
	loc := time.UTC
	if cond.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cond.Timezone)
		if err != nil {
			return false, "", fmt.Errorf("load timezone %q: %w", cond.Timezone, err)
		}
	}

	if len(cond.AffectedSystems) > 0 && !systemAffected(alarm, cond.AffectedSystems) {
		return false, "", nil
	}

	now := s.now().In(loc)
	minuteOfDay := now.Hour()*60 + now.Minute()
	for _, window := range cond.Windows {
		if clockRangeContains(window, minuteOfDay) {
			return true, fmt.Sprintf("inside silence window %s-%s (%s)", window.Start, window.End, loc), nil
		}
	}
	return false, "", nil
}

// matchDependencyFilter matches when a parent service of the alarm's service
// has an open alarm inside the cascade timeout, suppressing likely-derivative
// child alerts
func (s *NoiseService) matchDependencyFilter(cond *database.DependencyFilterCondition, alarm *database.Alarm) (bool, string, error) {
	parents := cond.Dependencies[alarm.Service]
	if len(parents) == 0 {
		return false, "", nil
	}

	cutoff := s.now().Add(-time.Duration(cond.CascadeTimeoutMinutes) * time.Minute)

	var parent database.Alarm
	err := s.db.
		Where("service IN ?", parents).
		Where("status = ?", database.AlarmStatusActive).
		Where("created_at > ?", cutoff).
		Order("created_at DESC").
		First(&parent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, "", nil
		}
		return false, "", err
	}
	return true, fmt.Sprintf("parent service %q has an active alarm (%s)", parent.Service, parent.Title), nil
}

// matchDuplicateSuppress matches when any recent alarm scores at or above the
// configured similarity threshold. Complementary to the dedup engine with its
// own threshold and window.
func (s *NoiseService) matchDuplicateSuppress(cond *database.DuplicateSuppressCondition, alarm *database.Alarm) (bool, string, error) {
	cutoff := s.now().Add(-time.Duration(cond.WindowMinutes) * time.Minute)

	var candidates []database.Alarm
	err := s.db.
		Where("created_at > ?", cutoff).
		Order("created_at DESC").
		Limit(50).
		Find(&candidates).Error
	if err != nil {
		return false, "", err
	}

	for i := range candidates {
		if candidates[i].ID == alarm.ID {
			continue
		}
		if score := alarms.Similarity(alarm, &candidates[i]); score >= cond.SimilarityThreshold {
			return true, fmt.Sprintf("similarity %.2f to alarm #%d (threshold %.2f)",
				score, candidates[i].ID, cond.SimilarityThreshold), nil
		}
	}
	return false, "", nil
}

// matchTimeBased matches (blocks) outside the allowed hours or on blocked
// weekdays
func (s *NoiseService) matchTimeBased(cond *database.TimeBasedCondition, alarm *database.Alarm) (bool, string, error) {
	loc := time.UTC
	if cond.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cond.Timezone)
		if err != nil {
			return false, "", fmt.Errorf("load timezone %q: %w", cond.Timezone, err)
		}
	}
	now := s.now().In(loc)

	for _, blocked := range cond.BlockedWeekdays {
		if int(now.Weekday()) == blocked {
			return true, fmt.Sprintf("%s is a blocked weekday", now.Weekday()), nil
		}
	}

	if len(cond.AllowedHours) > 0 {
		allowed := false
		for _, h := range cond.AllowedHours {
			if now.Hour() == h {
				allowed = true
				break
			}
		}
		if !allowed {
			return true, fmt.Sprintf("hour %02d is outside allowed hours", now.Hour()), nil
		}
	}
	return false, "", nil
}

// matchCustomRule evaluates the declarative condition-group tree or, as a
// fallback, the constrained expression string
func (s *NoiseService) matchCustomRule(cond *database.CustomRuleCondition, alarm *database.Alarm) (bool, string, error) {
	if cond.Group != nil {
		matched, err := evalConditionGroup(cond.Group, alarm)
		if err != nil {
			return false, "", err
		}
		if matched {
			return true, "condition group matched", nil
		}
		return false, "", nil
	}

	fieldCond, err := database.ParseExpression(cond.Expression)
	if err != nil {
		return false, "", err
	}
	matched, err := evalFieldCondition(fieldCond, alarm)
	if err != nil {
		return false, "", err
	}
	if matched {
		return true, fmt.Sprintf("expression %q matched", cond.Expression), nil
	}
	return false, "", nil
}

func evalConditionGroup(group *database.ConditionGroup, alarm *database.Alarm) (bool, error) {
	results := make([]bool, 0, len(group.Conditions)+len(group.Groups))
	for i := range group.Conditions {
		matched, err := evalFieldCondition(&group.Conditions[i], alarm)
		if err != nil {
			return false, err
		}
		results = append(results, matched)
	}
	for i := range group.Groups {
		matched, err := evalConditionGroup(&group.Groups[i], alarm)
		if err != nil {
			return false, err
		}
		results = append(results, matched)
	}

	if group.Operator == "or" {
		for _, r := range results {
			if r {
				return true, nil
			}
		}
		return false, nil
	}
	for _, r := range results {
		if !r {
			return false, nil
		}
	}
	return len(results) > 0, nil
}

func evalFieldCondition(cond *database.FieldCondition, alarm *database.Alarm) (bool, error) {
	actual := alarmFieldValue(alarm, cond.Field)

	switch cond.Operator {
	case database.OpEq:
		return actual == stringValue(cond.Value), nil
	case database.OpNe:
		return actual != stringValue(cond.Value), nil
	case database.OpContains:
		return strings.Contains(actual, stringValue(cond.Value)), nil
	case database.OpRegex:
		re, err := regexp.Compile(stringValue(cond.Value))
		if err != nil {
			return false, err
		}
		return re.MatchString(actual), nil
	case database.OpIn, database.OpNotIn:
		values, err := stringSliceValue(cond.Value)
		if err != nil {
			return false, err
		}
		found := false
		for _, v := range values {
			if actual == v {
				found = true
				break
			}
		}
		if cond.Operator == database.OpIn {
			return found, nil
		}
		return !found, nil
	case database.OpGt, database.OpLt, database.OpGte, database.OpLte:
		left, err := strconv.ParseFloat(actual, 64)
		if err != nil {
			return false, nil
		}
		right, err := strconv.ParseFloat(stringValue(cond.Value), 64)
		if err != nil {
			return false, fmt.Errorf("numeric comparison against non-number %v", cond.Value)
		}
		switch cond.Operator {
		case database.OpGt:
			return left > right, nil
		case database.OpLt:
			return left < right, nil
		case database.OpGte:
			return left >= right, nil
		default:
			return left <= right, nil
		}
	default:
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

// alarmFieldValue resolves a condition field name against the alarm. Tag and
// metadata lookups use the "tags." and "metadata." prefixes.
func alarmFieldValue(alarm *database.Alarm, field string) string {
	switch field {
	case "source":
		return alarm.Source
	case "title":
		return alarm.Title
	case "description":
		return alarm.Description
	case "severity":
		return string(alarm.Severity)
	case "category":
		return alarm.Category
	case "status":
		return string(alarm.Status)
	case "host":
		return alarm.Host
	case "service":
		return alarm.Service
	case "environment":
		return alarm.Environment
	case "count":
		return strconv.Itoa(alarm.Count)
	}
	if key, ok := strings.CutPrefix(field, "tags."); ok {
		return alarm.Tags[key]
	}
	if key, ok := strings.CutPrefix(field, "metadata."); ok {
		if v, present := alarm.Metadata[key]; present {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func stringSliceValue(v interface{}) ([]string, error) {
	switch vv := v.(type) {
	case []string:
		return vv, nil
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			out = append(out, stringValue(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("in/not_in value must be a list, got %T", v)
	}
}

func severityIn(s database.Severity, list []database.Severity) bool {
	for _, item := range list {
		if s == item {
			return true
		}
	}
	return false
}

func systemAffected(alarm *database.Alarm, systems []string) bool {
	for _, sys := range systems {
		if alarm.Service == sys || alarm.Host == sys {
			return true
		}
	}
	return false
}

// clockRangeContains checks whether the minute-of-day falls inside the range;
// ranges where start > end wrap past midnight
func clockRangeContains(r database.ClockRange, minuteOfDay int) bool {
	start := clockToMinutes(r.Start)
	end := clockToMinutes(r.End)
	if start <= end {
		return minuteOfDay >= start && minuteOfDay < end
	}
	return minuteOfDay >= start || minuteOfDay < end
}

func clockToMinutes(hhmm string) int {
	parts := strings.SplitN(hhmm, ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m := 0
	if len(parts) == 2 {
		m, _ = strconv.Atoi(parts[1])
	}
	return h*60 + m
}
