package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// SystemActor is the reserved actor identifier for automated transitions.
// Every automated action flows through the same transition path human
// actions use, attributed to this actor in the processing history.
const SystemActor = "system"

var (
	// ErrInvalidTransition indicates a state change the machine does not allow
	ErrInvalidTransition = errors.New("invalid processing state transition")
	// ErrProcessingNotFound indicates no processing record exists for the alarm
	ErrProcessingNotFound = errors.New("alarm processing record not found")
	// ErrConcurrentUpdate indicates the record changed under us mid-transition
	ErrConcurrentUpdate = errors.New("processing record was updated concurrently")
)

// validTransitions is the complete state table. Anything absent is rejected.
var validTransitions = map[database.ProcessingStatus][]database.ProcessingStatus{
	database.ProcessingPending: {
		database.ProcessingAcknowledged, database.ProcessingInvestigating,
		database.ProcessingInProgress, database.ProcessingEscalated,
	},
	database.ProcessingAcknowledged: {
		database.ProcessingInvestigating, database.ProcessingInProgress,
		database.ProcessingWaiting, database.ProcessingEscalated,
	},
	database.ProcessingInvestigating: {
		database.ProcessingInProgress, database.ProcessingWaiting,
		database.ProcessingResolved, database.ProcessingEscalated,
	},
	database.ProcessingInProgress: {
		database.ProcessingInvestigating, database.ProcessingWaiting,
		database.ProcessingResolved, database.ProcessingEscalated,
	},
	database.ProcessingWaiting: {
		database.ProcessingInvestigating, database.ProcessingInProgress,
		database.ProcessingResolved, database.ProcessingEscalated,
	},
	database.ProcessingResolved: {
		database.ProcessingClosed, database.ProcessingInProgress,
	},
	database.ProcessingEscalated: {
		database.ProcessingAcknowledged, database.ProcessingInProgress,
		database.ProcessingResolved,
	},
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to database.ProcessingStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// LifecycleService owns the alarm processing state machine and SLA engine.
// All mutations of a processing record go through Transition or Assign so
// the audit history stays complete and ordered.
type LifecycleService struct {
	db       *gorm.DB
	notifier Notifier
	oncall   OncallResolver
	now      func() time.Time

	// escalator is set after construction to avoid a constructor cycle
	// with the escalation service
	escalator EscalationTrigger
}

// EscalationTrigger is the slice of the escalation engine the sweep needs
type EscalationTrigger interface {
	Trigger(ctx context.Context, alarmID uint, team string) (bool, error)
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(db *gorm.DB, notifier Notifier, oncall OncallResolver) *LifecycleService {
	return &LifecycleService{db: db, notifier: notifier, oncall: oncall, now: time.Now}
}

// SetEscalator wires in the escalation engine used by escalate rules
func (s *LifecycleService) SetEscalator(e EscalationTrigger) {
	s.escalator = e
}

// CreateProcessing creates the lifecycle record for an alarm. The SLA
// deadline is computed here, once, from the priority, and never recomputed.
func (s *LifecycleService) CreateProcessing(ctx context.Context, alarm *database.Alarm, priority database.Priority) (*database.AlarmProcessing, error) {
	sla, ok := database.SLADurations[priority]
	if !ok {
		return nil, fmt.Errorf("unknown priority %q", priority)
	}

	now := s.now()
	processing := &database.AlarmProcessing{
		AlarmID:     alarm.ID,
		Status:      database.ProcessingPending,
		Priority:    priority,
		SLADeadline: now.Add(sla),
		CreatedAt:   now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(processing).Error; err != nil {
			return err
		}
		return tx.Create(&database.ProcessingHistory{
			ProcessingID: processing.ID,
			AlarmID:      alarm.ID,
			Actor:        SystemActor,
			Action:       "created",
			NewStatus:    database.ProcessingPending,
			Notes:        fmt.Sprintf("priority %s, SLA deadline %s", priority, processing.SLADeadline.Format(time.RFC3339)),
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create processing record: %w", err)
	}
	return processing, nil
}

// GetProcessing returns the processing record for an alarm
func (s *LifecycleService) GetProcessing(ctx context.Context, alarmID uint) (*database.AlarmProcessing, error) {
	var processing database.AlarmProcessing
	err := s.db.Where("alarm_id = ?", alarmID).First(&processing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProcessingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &processing, nil
}

// Transition moves the processing record to a new state. The update is
// guarded by the old status so a concurrent transition (human racing the
// sweep) loses cleanly instead of silently overwriting.
func (s *LifecycleService) Transition(ctx context.Context, alarmID uint, to database.ProcessingStatus, actor, notes string) error {
	processing, err := s.GetProcessing(ctx, alarmID)
	if err != nil {
		return err
	}
	from := processing.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := s.now()
	updates := map[string]interface{}{"status": to}

	switch to {
	case database.ProcessingAcknowledged:
		if processing.AcknowledgedAt == nil {
			updates["acknowledged_by"] = actor
			updates["acknowledged_at"] = now
			// Response time in minutes, set once
			updates["response_time_minutes"] = int(now.Sub(processing.CreatedAt).Minutes())
		}
	case database.ProcessingResolved:
		updates["resolved_by"] = actor
		updates["resolved_at"] = now
		if notes != "" {
			updates["resolution"] = notes
		}
		if processing.ResolutionTimeMinutes == nil {
			updates["resolution_time_minutes"] = int(now.Sub(processing.CreatedAt).Minutes())
		}
	case database.ProcessingClosed:
		updates["closed_by"] = actor
		updates["closed_at"] = now
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&database.AlarmProcessing{}).
			Where("id = ? AND status = ?", processing.ID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		if err := tx.Create(&database.ProcessingHistory{
			ProcessingID: processing.ID,
			AlarmID:      alarmID,
			Actor:        actor,
			Action:       "transition",
			OldStatus:    from,
			NewStatus:    to,
			Notes:        notes,
		}).Error; err != nil {
			return err
		}
		return s.syncAlarmStatus(tx, alarmID, to)
	})
	if err != nil {
		return err
	}

	log.Info().Uint("alarm_id", alarmID).Str("from", string(from)).Str("to", string(to)).
		Str("actor", actor).Msg("processing state transition")
	return nil
}

// syncAlarmStatus mirrors processing state onto the alarm's surface status
func (s *LifecycleService) syncAlarmStatus(tx *gorm.DB, alarmID uint, status database.ProcessingStatus) error {
	var alarmStatus database.AlarmStatus
	switch status {
	case database.ProcessingAcknowledged:
		alarmStatus = database.AlarmStatusAcknowledged
	case database.ProcessingResolved:
		alarmStatus = database.AlarmStatusResolved
	case database.ProcessingClosed:
		alarmStatus = database.AlarmStatusClosed
	case database.ProcessingInProgress, database.ProcessingInvestigating:
		alarmStatus = database.AlarmStatusAcknowledged
	default:
		return nil
	}
	return tx.Model(&database.Alarm{}).Where("id = ?", alarmID).
		Update("status", alarmStatus).Error
}

// Assign sets the assignee on a processing record and records the handoff
func (s *LifecycleService) Assign(ctx context.Context, alarmID uint, assignee, actor string) error {
	processing, err := s.GetProcessing(ctx, alarmID)
	if err != nil {
		return err
	}
	if processing.IsTerminal() {
		return fmt.Errorf("%w: cannot assign a closed record", ErrInvalidTransition)
	}

	now := s.now()
	oldAssignee := processing.AssignedTo

	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&database.AlarmProcessing{}).Where("id = ?", processing.ID).
			Updates(map[string]interface{}{
				"assigned_to": assignee,
				"assigned_by": actor,
				"assigned_at": now,
			}).Error
		if err != nil {
			return err
		}
		return tx.Create(&database.ProcessingHistory{
			ProcessingID: processing.ID,
			AlarmID:      alarmID,
			Actor:        actor,
			Action:       "assign",
			OldStatus:    processing.Status,
			NewStatus:    processing.Status,
			OldAssignee:  oldAssignee,
			NewAssignee:  assignee,
		}).Error
	})
}

// RecordEscalation stamps the escalation level and target on the record
func (s *LifecycleService) RecordEscalation(ctx context.Context, alarmID uint, level int, target, reason string) error {
	processing, err := s.GetProcessing(ctx, alarmID)
	if err != nil {
		return err
	}
	return s.db.Model(&database.AlarmProcessing{}).Where("id = ?", processing.ID).
		Updates(map[string]interface{}{
			"escalation_level":  level,
			"escalated_to":      target,
			"escalation_reason": reason,
		}).Error
}

// History returns the audit trail for an alarm in append order
func (s *LifecycleService) History(ctx context.Context, alarmID uint) ([]database.ProcessingHistory, error) {
	var history []database.ProcessingHistory
	err := s.db.Where("alarm_id = ?", alarmID).Order("id ASC").Find(&history).Error
	return history, err
}
