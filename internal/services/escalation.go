package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// ExecutionStatus is the overall state of one escalation run
type ExecutionStatus string

const (
	ExecutionPending      ExecutionStatus = "pending"
	ExecutionNotified     ExecutionStatus = "notified"
	ExecutionAcknowledged ExecutionStatus = "acknowledged"
	ExecutionEscalated    ExecutionStatus = "escalated"
	ExecutionResolved     ExecutionStatus = "resolved"
	ExecutionTimeout      ExecutionStatus = "timeout"
)

var (
	// ErrAlreadyEscalating indicates an execution is already running for the alarm
	ErrAlreadyEscalating = errors.New("alarm is already escalating")
	// ErrNoExecution indicates no active escalation exists for the alarm
	ErrNoExecution = errors.New("no active escalation for alarm")
	// ErrNoResponders indicates a policy with zero resolvable members at
	// every level; a failed escalation must fail loudly, not no-op
	ErrNoResponders = errors.New("escalation policy has no resolvable members at any level")
)

// EscalationStep is one tier of the responsibility chain, with its eligible
// members resolved at trigger time
type EscalationStep struct {
	Level          int
	Members        []database.TeamMember
	DelayMinutes   int
	TimeoutMinutes int
	Channels       []string
	AutoAssign     bool
}

// EscalationExecution is the transient in-memory run state of one actively
// escalating alarm. StepStartedAt is tracked explicitly so a missed poll
// tick never double-advances.
type EscalationExecution struct {
	mu sync.Mutex

	AlarmID        uint
	Team           string
	Steps          []EscalationStep
	CurrentStep    int
	Status         ExecutionStatus
	StartedAt      time.Time
	StepStartedAt  time.Time
	LastNotifiedAt time.Time
	AcknowledgedBy string
	AcknowledgedAt *time.Time
}

// ExecutionSnapshot is the lock-free view handed to status queries
type ExecutionSnapshot struct {
	AlarmID        uint             `json:"alarm_id"`
	Team           string           `json:"team"`
	CurrentStep    int              `json:"current_step"`
	TotalSteps     int              `json:"total_steps"`
	Status         ExecutionStatus  `json:"status"`
	StartedAt      time.Time        `json:"started_at"`
	StepStartedAt  time.Time        `json:"step_started_at"`
	LastNotifiedAt time.Time        `json:"last_notified_at"`
	AcknowledgedBy string           `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`
	Steps          []EscalationStep `json:"steps"`
}

// EscalationService walks severity-specific responsibility chains for alarms
// that breached their lifecycle conditions. The active set is the only
// in-memory state; each execution carries its own lock so unrelated alarms
// never serialize on each other.
type EscalationService struct {
	db        *gorm.DB
	oncall    OncallResolver
	notifier  Notifier
	lifecycle *LifecycleService
	now       func() time.Time

	mu     sync.RWMutex
	active map[uint]*EscalationExecution
}

// NewEscalationService creates a new escalation service
func NewEscalationService(db *gorm.DB, oncall OncallResolver, notifier Notifier, lifecycle *LifecycleService) *EscalationService {
	return &EscalationService{
		db:        db,
		oncall:    oncall,
		notifier:  notifier,
		lifecycle: lifecycle,
		now:       time.Now,
		active:    make(map[uint]*EscalationExecution),
	}
}

// Trigger starts an escalation run for the alarm. The team is resolved from
// the alarm's service when not given. Returns true when a run was started;
// a second concurrent trigger for the same alarm is refused.
func (s *EscalationService) Trigger(ctx context.Context, alarmID uint, team string) (bool, error) {
	var alarm database.Alarm
	if err := s.db.First(&alarm, alarmID).Error; err != nil {
		return false, fmt.Errorf("alarm %d not found: %w", alarmID, err)
	}

	if team == "" {
		resolved, err := s.oncall.TeamForSystem(ctx, alarm.Service)
		if err != nil {
			log.Error().Err(err).Uint("alarm_id", alarmID).Str("service", alarm.Service).
				Msg("escalation trigger failed: unresolvable team")
			return false, fmt.Errorf("cannot resolve responsible team: %w", err)
		}
		team = resolved
	}

	steps, err := s.buildSteps(ctx, team, alarm.Severity)
	if err != nil {
		return false, err
	}

	execution := &EscalationExecution{
		AlarmID:       alarmID,
		Team:          team,
		Steps:         steps,
		Status:        ExecutionPending,
		StartedAt:     s.now(),
		StepStartedAt: s.now(),
	}

	s.mu.Lock()
	if _, exists := s.active[alarmID]; exists {
		s.mu.Unlock()
		return false, ErrAlreadyEscalating
	}
	s.active[alarmID] = execution
	s.mu.Unlock()

	// Ensure a processing record exists; escalation may be the first
	// handling an alarm sees
	if _, err := s.lifecycle.GetProcessing(ctx, alarmID); errors.Is(err, ErrProcessingNotFound) {
		if _, err := s.lifecycle.CreateProcessing(ctx, &alarm, database.PriorityForSeverity(alarm.Severity)); err != nil {
			log.Warn().Err(err).Uint("alarm_id", alarmID).Msg("failed to create processing record on escalation")
		}
	}

	if err := s.lifecycle.Transition(ctx, alarmID, database.ProcessingEscalated, SystemActor,
		fmt.Sprintf("escalation started for team %q", team)); err != nil {
		log.Warn().Err(err).Uint("alarm_id", alarmID).Msg("could not mark processing escalated")
	}

	s.executeStep(ctx, execution, &alarm)

	log.Info().Uint("alarm_id", alarmID).Str("team", team).Int("steps", len(steps)).
		Msg("escalation started")
	return true, nil
}

// buildSteps assembles the step list from the team/severity policy (or the
// built-in default) and resolves each level's members. A chain with no
// resolvable members anywhere is a fatal configuration error.
func (s *EscalationService) buildSteps(ctx context.Context, team string, severity database.Severity) ([]EscalationStep, error) {
	levels := s.policyLevels(team, severity)

	steps := make([]EscalationStep, 0, len(levels))
	anyMembers := false
	for _, level := range levels {
		members, err := s.oncall.MembersAt(ctx, team, level.Level)
		if err != nil {
			log.Warn().Err(err).Str("team", team).Int("level", level.Level).
				Msg("failed to resolve members for escalation level")
		}
		if len(members) > 0 {
			anyMembers = true
		}
		steps = append(steps, EscalationStep{
			Level:          level.Level,
			Members:        members,
			DelayMinutes:   level.DelayMinutes,
			TimeoutMinutes: level.TimeoutMinutes,
			Channels:       level.Channels,
			AutoAssign:     level.AutoAssign,
		})
	}
	if !anyMembers {
		return nil, fmt.Errorf("%w (team %q)", ErrNoResponders, team)
	}
	return steps, nil
}

// policyLevels picks the most specific enabled policy: team+severity, then
// team-wide, then severity-wide, then the built-in default chain
func (s *EscalationService) policyLevels(team string, severity database.Severity) database.EscalationLevels {
	var policies []database.EscalationPolicy
	if err := s.db.Where("enabled = ?", true).Find(&policies).Error; err != nil {
		log.Warn().Err(err).Msg("failed to load escalation policies, using default chain")
		return database.DefaultEscalationLevels()
	}

	var teamWide, severityWide *database.EscalationPolicy
	for i := range policies {
		p := &policies[i]
		switch {
		case p.Team == team && p.Severity == severity:
			return p.Levels
		case p.Team == team && p.Severity == "":
			teamWide = p
		case p.Team == "" && p.Severity == severity:
			severityWide = p
		}
	}
	if teamWide != nil {
		return teamWide.Levels
	}
	if severityWide != nil {
		return severityWide.Levels
	}
	return database.DefaultEscalationLevels()
}

// executeStep notifies every member of the execution's current step. Member
// notification failures are collected and logged without aborting the rest;
// the step is considered executed once the fan-out completes.
func (s *EscalationService) executeStep(ctx context.Context, execution *EscalationExecution, alarm *database.Alarm) {
	execution.mu.Lock()
	step := execution.Steps[execution.CurrentStep]
	execution.Status = ExecutionNotified
	execution.LastNotifiedAt = s.now()
	execution.mu.Unlock()

	for _, member := range step.Members {
		if err := s.notifier.Notify(ctx, member, alarm, step.Level, step.Channels); err != nil {
			log.Warn().Err(err).Str("member", member.UserID).Uint("alarm_id", alarm.ID).
				Int("level", step.Level).Msg("escalation notification failed")
		}
	}

	if err := s.lifecycle.RecordEscalation(ctx, alarm.ID, step.Level, execution.Team,
		fmt.Sprintf("notified %d member(s) at level %d", len(step.Members), step.Level)); err != nil {
		log.Warn().Err(err).Uint("alarm_id", alarm.ID).Msg("failed to record escalation level")
	}

	if step.AutoAssign && len(step.Members) > 0 {
		if err := s.lifecycle.Assign(ctx, alarm.ID, step.Members[0].UserID, SystemActor); err != nil {
			log.Warn().Err(err).Uint("alarm_id", alarm.ID).Msg("escalation auto-assign failed")
		}
	}
}

// CheckTimeouts advances every active execution whose current step timed
// out. Called by the escalation loop on each poll tick; a failure on one
// execution never stops the others.
func (s *EscalationService) CheckTimeouts(ctx context.Context) {
	s.mu.RLock()
	executions := make([]*EscalationExecution, 0, len(s.active))
	for _, execution := range s.active {
		executions = append(executions, execution)
	}
	s.mu.RUnlock()

	for _, execution := range executions {
		s.checkOne(ctx, execution)
	}
}

func (s *EscalationService) checkOne(ctx context.Context, execution *EscalationExecution) {
	execution.mu.Lock()

	if execution.Status == ExecutionAcknowledged || execution.Status == ExecutionResolved {
		execution.mu.Unlock()
		return
	}

	step := execution.Steps[execution.CurrentStep]
	timeout := time.Duration(step.TimeoutMinutes) * time.Minute
	if s.now().Sub(execution.StepStartedAt) < timeout {
		execution.mu.Unlock()
		return
	}

	if execution.CurrentStep+1 >= len(execution.Steps) {
		// Chain exhausted
		execution.Status = ExecutionTimeout
		alarmID := execution.AlarmID
		execution.mu.Unlock()

		s.removeExecution(alarmID)
		log.Warn().Uint("alarm_id", alarmID).Msg("escalation chain exhausted without acknowledgment")
		return
	}

	execution.CurrentStep++
	execution.Status = ExecutionEscalated
	execution.StepStartedAt = s.now()
	alarmID := execution.AlarmID
	newLevel := execution.Steps[execution.CurrentStep].Level
	execution.mu.Unlock()

	var alarm database.Alarm
	if err := s.db.First(&alarm, alarmID).Error; err != nil {
		log.Error().Err(err).Uint("alarm_id", alarmID).Msg("escalating alarm vanished, dropping execution")
		s.removeExecution(alarmID)
		return
	}

	log.Info().Uint("alarm_id", alarmID).Int("level", newLevel).Msg("escalation advanced to next level")
	s.executeStep(ctx, execution, &alarm)
}

// Acknowledge marks the run acknowledged. The execution stays in the active
// set so status queries can still see it, but automatic advancement halts.
func (s *EscalationService) Acknowledge(ctx context.Context, alarmID uint, userID string) error {
	execution := s.getExecution(alarmID)
	if execution == nil {
		return ErrNoExecution
	}

	now := s.now()
	execution.mu.Lock()
	execution.Status = ExecutionAcknowledged
	execution.AcknowledgedBy = userID
	execution.AcknowledgedAt = &now
	execution.mu.Unlock()

	if err := s.lifecycle.Transition(ctx, alarmID, database.ProcessingAcknowledged, userID,
		"escalation acknowledged"); err != nil {
		log.Warn().Err(err).Uint("alarm_id", alarmID).Msg("could not mark processing acknowledged")
	}

	log.Info().Uint("alarm_id", alarmID).Str("user", userID).Msg("escalation acknowledged")
	return nil
}

// Resolve marks the run resolved and removes it from the active set
func (s *EscalationService) Resolve(ctx context.Context, alarmID uint, userID string) error {
	execution := s.getExecution(alarmID)
	if execution == nil {
		return ErrNoExecution
	}

	execution.mu.Lock()
	execution.Status = ExecutionResolved
	execution.mu.Unlock()
	s.removeExecution(alarmID)

	if err := s.lifecycle.Transition(ctx, alarmID, database.ProcessingResolved, userID,
		"resolved during escalation"); err != nil {
		log.Warn().Err(err).Uint("alarm_id", alarmID).Msg("could not mark processing resolved")
	}

	log.Info().Uint("alarm_id", alarmID).Str("user", userID).Msg("escalation resolved")
	return nil
}

// Status returns a snapshot of the alarm's escalation run for observability
func (s *EscalationService) Status(alarmID uint) (*ExecutionSnapshot, error) {
	execution := s.getExecution(alarmID)
	if execution == nil {
		return nil, ErrNoExecution
	}

	execution.mu.Lock()
	defer execution.mu.Unlock()

	steps := make([]EscalationStep, len(execution.Steps))
	copy(steps, execution.Steps)

	return &ExecutionSnapshot{
		AlarmID:        execution.AlarmID,
		Team:           execution.Team,
		CurrentStep:    execution.CurrentStep,
		TotalSteps:     len(execution.Steps),
		Status:         execution.Status,
		StartedAt:      execution.StartedAt,
		StepStartedAt:  execution.StepStartedAt,
		LastNotifiedAt: execution.LastNotifiedAt,
		AcknowledgedBy: execution.AcknowledgedBy,
		AcknowledgedAt: execution.AcknowledgedAt,
		Steps:          steps,
	}, nil
}

// ActiveCount returns how many executions are currently in flight
func (s *EscalationService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

func (s *EscalationService) getExecution(alarmID uint) *EscalationExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[alarmID]
}

func (s *EscalationService) removeExecution(alarmID uint) {
	s.mu.Lock()
	delete(s.active, alarmID)
	s.mu.Unlock()
}
