package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// ruleCacheTTL bounds how long a rule change can take to reach evaluation
const ruleCacheTTL = 30 * time.Second

// NoiseResult is the outcome of running an alarm through the rule engine
type NoiseResult struct {
	// Passed is false when the matched action stops propagation
	Passed   bool
	RuleID   uint
	RuleName string
	Action   database.RuleAction
	Reason   string

	// Discarded additionally means "keep nothing, not even for audit"
	Discarded bool

	// ReleaseAt is set by the delay action; the caller holds the alarm
	// back until then
	ReleaseAt *time.Time

	// DowngradeTo is set by the downgrade action; the caller applies it
	// before continuing the pipeline
	DowngradeTo database.Severity

	// AggregationKey/Window are set by the aggregate action for
	// caller-side batching
	AggregationKey    string
	AggregationWindow time.Duration
}

// NoiseService evaluates the ordered noise reduction rule set against each
// deduplicated alarm. Rules are cached with a short TTL, filtered by enabled
// flag and effective window, sorted ascending by priority, and the first
// matching rule decides the outcome.
type NoiseService struct {
	db  *gorm.DB
	now func() time.Time

	mu          sync.Mutex
	cachedRules []database.NoiseRule
	cachedAt    time.Time
}

// NewNoiseService creates a new noise reduction service
func NewNoiseService(db *gorm.DB) *NoiseService {
	return &NoiseService{db: db, now: time.Now}
}

// ClearCache invalidates the rule cache so the next evaluation refetches
func (s *NoiseService) ClearCache() {
	s.mu.Lock()
	s.cachedRules = nil
	s.cachedAt = time.Time{}
	s.mu.Unlock()
}

// Evaluate runs the alarm through the active rule set. Every rule evaluation
// is recorded in the execution log, matched or not; a single rule's failure
// is logged and never aborts the remaining rules.
func (s *NoiseService) Evaluate(ctx context.Context, alarm *database.Alarm) (*NoiseResult, error) {
	rules, err := s.activeRules()
	if err != nil {
		log.Warn().Err(err).Msg("noise rules unavailable, forwarding alarm")
		return &NoiseResult{Passed: true, Action: database.ActionForward}, nil
	}

	for i := range rules {
		rule := &rules[i]

		start := time.Now()
		matched, details, evalErr := s.matchRule(rule, alarm)
		s.logExecution(rule, alarm, matched, details, evalErr, time.Since(start))

		if evalErr != nil {
			log.Warn().Err(evalErr).Str("rule", rule.Name).Str("alarm", alarm.UUID).
				Msg("rule evaluation failed, continuing with remaining rules")
			continue
		}
		if !matched {
			continue
		}

		s.recordHit(rule.ID)
		return s.applyAction(rule, alarm, details)
	}

	return &NoiseResult{Passed: true, Action: database.ActionForward}, nil
}

// activeRules returns enabled rules inside their effective window, sorted by
// ascending priority with ID as the deterministic tiebreaker. The fetch is
// cached for ruleCacheTTL.
func (s *NoiseService) activeRules() ([]database.NoiseRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachedAt.IsZero() || s.now().Sub(s.cachedAt) > ruleCacheTTL {
		var rules []database.NoiseRule
		if err := s.db.Where("enabled = ?", true).Find(&rules).Error; err != nil {
			return nil, err
		}
		s.cachedRules = rules
		s.cachedAt = s.now()
	}

	now := s.now()
	active := make([]database.NoiseRule, 0, len(s.cachedRules))
	for _, rule := range s.cachedRules {
		if rule.EffectiveAt(now) {
			active = append(active, rule)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].ID < active[j].ID
	})
	return active, nil
}

func (s *NoiseService) applyAction(rule *database.NoiseRule, alarm *database.Alarm, details string) (*NoiseResult, error) {
	result := &NoiseResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Action:   rule.Action,
		Reason:   details,
	}

	switch rule.Action {
	case database.ActionSuppress:
		result.Passed = false
	case database.ActionDiscard:
		result.Passed = false
		result.Discarded = true
	case database.ActionDelay:
		params, err := database.DecodeParams(rule)
		if err != nil {
			return nil, err
		}
		releaseAt := s.now().Add(time.Duration(params.(*database.DelayParams).DelayMinutes) * time.Minute)
		result.Passed = true
		result.ReleaseAt = &releaseAt
	case database.ActionDowngrade:
		params, err := database.DecodeParams(rule)
		if err != nil {
			return nil, err
		}
		result.Passed = true
		result.DowngradeTo = params.(*database.DowngradeParams).Severity
	case database.ActionAggregate:
		params, err := database.DecodeParams(rule)
		if err != nil {
			return nil, err
		}
		agg := params.(*database.AggregateParams)
		result.Passed = true
		result.AggregationKey = aggregationKey(alarm, agg.GroupBy)
		result.AggregationWindow = time.Duration(agg.WindowMinutes) * time.Minute
	case database.ActionForward:
		result.Passed = true
	default:
		return nil, fmt.Errorf("unknown rule action %q", rule.Action)
	}

	return result, nil
}

// recordHit bumps the rule's hit counters; the only mutation the engine ever
// makes to a rule
func (s *NoiseService) recordHit(ruleID uint) {
	now := s.now()
	err := s.db.Model(&database.NoiseRule{}).Where("id = ?", ruleID).
		UpdateColumns(map[string]interface{}{
			"hit_count":   gorm.Expr("hit_count + 1"),
			"last_hit_at": now,
		}).Error
	if err != nil {
		log.Warn().Err(err).Uint("rule_id", ruleID).Msg("failed to record rule hit")
	}
}

func (s *NoiseService) logExecution(rule *database.NoiseRule, alarm *database.Alarm, matched bool, details string, evalErr error, took time.Duration) {
	entry := &database.RuleExecutionLog{
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		AlarmUUID:  alarm.UUID,
		Matched:    matched,
		Details:    details,
		DurationUs: took.Microseconds(),
	}
	if matched {
		entry.Action = rule.Action
	}
	if evalErr != nil {
		entry.Error = evalErr.Error()
	}
	if err := s.db.Create(entry).Error; err != nil {
		log.Warn().Err(err).Str("rule", rule.Name).Msg("failed to write rule execution log")
	}
}

func aggregationKey(alarm *database.Alarm, groupBy []string) string {
	key := ""
	for i, field := range groupBy {
		if i > 0 {
			key += "|"
		}
		key += alarmFieldValue(alarm, field)
	}
	return key
}
