package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// Sweep runs one pass of the lifecycle rules over every alarm that is still
// active or acknowledged. Rules fire in ascending priority order and only
// the first matching rule per alarm acts, mirroring the noise reduction
// engine's first-match-wins policy. A failure on one alarm is logged and the
// sweep moves on; a bad record never stalls the rest.
func (s *LifecycleService) Sweep(ctx context.Context) (int, error) {
	if err := s.markSLABreaches(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to mark SLA breaches")
	}

	rules, err := s.activeLifecycleRules()
	if err != nil {
		return 0, fmt.Errorf("failed to load lifecycle rules: %w", err)
	}
	if len(rules) == 0 {
		return 0, nil
	}

	var records []database.AlarmProcessing
	err = s.db.Preload("Alarm").
		Joins("JOIN alarms ON alarms.id = alarm_processings.alarm_id").
		Where("alarms.status IN ?", []database.AlarmStatus{
			database.AlarmStatusActive,
			database.AlarmStatusAcknowledged,
			database.AlarmStatusResolved,
		}).
		Where("alarm_processings.status <> ?", database.ProcessingClosed).
		Find(&records).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load processing records: %w", err)
	}

	fired := 0
	for i := range records {
		record := &records[i]
		acted, err := s.sweepOne(ctx, record, rules)
		if err != nil {
			log.Warn().Err(err).Uint("alarm_id", record.AlarmID).
				Msg("lifecycle sweep failed for alarm, continuing")
			continue
		}
		if acted {
			fired++
		}
	}
	return fired, nil
}

func (s *LifecycleService) sweepOne(ctx context.Context, record *database.AlarmProcessing, rules []database.LifecycleRule) (bool, error) {
	for i := range rules {
		rule := &rules[i]
		matched, err := s.lifecycleRuleMatches(rule, record)
		if err != nil {
			log.Warn().Err(err).Str("rule", rule.Name).Msg("lifecycle rule evaluation failed, skipping rule")
			continue
		}
		if !matched {
			continue
		}
		// First match wins; later matching rules are neither evaluated
		// nor attributed.
		return true, s.applyLifecycleAction(ctx, rule, record)
	}
	return false, nil
}

func (s *LifecycleService) activeLifecycleRules() ([]database.LifecycleRule, error) {
	var rules []database.LifecycleRule
	err := s.db.Where("enabled = ?", true).
		Order("priority ASC, id ASC").
		Find(&rules).Error
	return rules, err
}

func (s *LifecycleService) lifecycleRuleMatches(rule *database.LifecycleRule, record *database.AlarmProcessing) (bool, error) {
	cond, err := database.DecodeLifecycleCondition(rule)
	if err != nil {
		return false, err
	}
	now := s.now()
	alarm := &record.Alarm

	if len(cond.Severities) > 0 && !severityIn(alarm.Severity, cond.Severities) {
		return false, nil
	}
	if len(cond.Statuses) > 0 && !alarmStatusIn(alarm.Status, cond.Statuses) {
		return false, nil
	}
	if len(cond.ProcessingStatuses) > 0 && !processingStatusIn(record.Status, cond.ProcessingStatuses) {
		return false, nil
	}
	if cond.MinAgeMinutes > 0 {
		if now.Sub(record.CreatedAt) < time.Duration(cond.MinAgeMinutes)*time.Minute {
			return false, nil
		}
	}
	if cond.MinResolvedIdleMinutes > 0 {
		if record.ResolvedAt == nil {
			return false, nil
		}
		if now.Sub(*record.ResolvedAt) < time.Duration(cond.MinResolvedIdleMinutes)*time.Minute {
			return false, nil
		}
	}
	if cond.SLARemainingPercent > 0 {
		if record.SLARemainingFraction(now)*100 > cond.SLARemainingPercent {
			return false, nil
		}
		// Warn once per record
		if rule.Action == database.LifecycleActionSLAWarning && record.SLAWarnedAt != nil {
			return false, nil
		}
	}
	return true, nil
}

func (s *LifecycleService) applyLifecycleAction(ctx context.Context, rule *database.LifecycleRule, record *database.AlarmProcessing) error {
	params, err := database.DecodeLifecycleParams(rule)
	if err != nil {
		return err
	}

	switch rule.Action {
	case database.LifecycleActionAcknowledge:
		return s.Transition(ctx, record.AlarmID, database.ProcessingAcknowledged, SystemActor,
			fmt.Sprintf("auto-acknowledged by rule %q", rule.Name))

	case database.LifecycleActionClose:
		return s.Transition(ctx, record.AlarmID, database.ProcessingClosed, SystemActor,
			fmt.Sprintf("auto-closed by rule %q", rule.Name))

	case database.LifecycleActionEscalate:
		if s.escalator == nil {
			return fmt.Errorf("rule %q requires an escalation engine, none wired", rule.Name)
		}
		started, err := s.escalator.Trigger(ctx, record.AlarmID, params.Team)
		if err != nil {
			return fmt.Errorf("rule %q escalation trigger: %w", rule.Name, err)
		}
		if started {
			log.Info().Uint("alarm_id", record.AlarmID).Str("rule", rule.Name).
				Str("policy", params.PolicyName).Msg("lifecycle rule triggered escalation")
		}
		return nil

	case database.LifecycleActionSLAWarning:
		return s.sendSLAWarning(ctx, record, params)

	case database.LifecycleActionAssign:
		member, err := s.oncall.OnDuty(ctx, params.Team)
		if err != nil {
			return fmt.Errorf("rule %q oncall resolution: %w", rule.Name, err)
		}
		return s.Assign(ctx, record.AlarmID, member.UserID, SystemActor)

	default:
		return fmt.Errorf("unknown lifecycle action %q", rule.Action)
	}
}

func (s *LifecycleService) sendSLAWarning(ctx context.Context, record *database.AlarmProcessing, params *database.LifecycleParams) error {
	now := s.now()

	// Stamp first so a notifier failure cannot cause warning spam
	err := s.db.Model(&database.AlarmProcessing{}).Where("id = ?", record.ID).
		Update("sla_warned_at", now).Error
	if err != nil {
		return err
	}

	targets := params.NotifyTargets
	if len(targets) == 0 {
		targets = []string{"assignee"}
	}
	for _, target := range targets {
		member := database.TeamMember{UserID: target}
		if target == "assignee" {
			if record.AssignedTo == "" {
				continue
			}
			member.UserID = record.AssignedTo
		}
		if err := s.notifier.Notify(ctx, member, &record.Alarm, record.EscalationLevel, []string{"email"}); err != nil {
			log.Warn().Err(err).Str("target", member.UserID).Uint("alarm_id", record.AlarmID).
				Msg("SLA warning notification failed")
		}
	}

	return s.db.Create(&database.ProcessingHistory{
		ProcessingID: record.ID,
		AlarmID:      record.AlarmID,
		Actor:        SystemActor,
		Action:       "sla_warning",
		OldStatus:    record.Status,
		NewStatus:    record.Status,
		Notes:        fmt.Sprintf("SLA deadline %s", record.SLADeadline.Format(time.RFC3339)),
	}).Error
}

// markSLABreaches flags records past their deadline that are not yet
// resolved or closed
func (s *LifecycleService) markSLABreaches(ctx context.Context) error {
	return s.db.Model(&database.AlarmProcessing{}).
		Where("sla_breached = ?", false).
		Where("sla_deadline < ?", s.now()).
		Where("status NOT IN ?", []database.ProcessingStatus{
			database.ProcessingResolved, database.ProcessingClosed,
		}).
		Update("sla_breached", true).Error
}

func alarmStatusIn(s database.AlarmStatus, list []database.AlarmStatus) bool {
	for _, item := range list {
		if s == item {
			return true
		}
	}
	return false
}

func processingStatusIn(s database.ProcessingStatus, list []database.ProcessingStatus) bool {
	for _, item := range list {
		if s == item {
			return true
		}
	}
	return false
}
