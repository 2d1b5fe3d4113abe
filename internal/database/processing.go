package database

import "time"

// ProcessingStatus is the handling state of an alarm's processing record
type ProcessingStatus string

const (
	ProcessingPending       ProcessingStatus = "pending"
	ProcessingAcknowledged  ProcessingStatus = "acknowledged"
	ProcessingInvestigating ProcessingStatus = "investigating"
	ProcessingInProgress    ProcessingStatus = "in_progress"
	ProcessingWaiting       ProcessingStatus = "waiting"
	ProcessingResolved      ProcessingStatus = "resolved"
	ProcessingClosed        ProcessingStatus = "closed"
	ProcessingEscalated     ProcessingStatus = "escalated"
)

// Priority is the handling priority of an alarm, driving its SLA
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// SLADurations maps priority to the time allowed before the SLA deadline
var SLADurations = map[Priority]time.Duration{
	PriorityP1: 1 * time.Hour,
	PriorityP2: 4 * time.Hour,
	PriorityP3: 24 * time.Hour,
	PriorityP4: 72 * time.Hour,
}

// PriorityForSeverity maps alarm severity onto a handling priority
func PriorityForSeverity(s Severity) Priority {
	switch s {
	case SeverityCritical:
		return PriorityP1
	case SeverityHigh:
		return PriorityP2
	case SeverityMedium:
		return PriorityP3
	default:
		return PriorityP4
	}
}

// AlarmProcessing is the lifecycle record, one-to-one with an Alarm. It is
// created when an alarm first requires handling and mutated exclusively
// through the lifecycle service's transition operations. Closed records are
// kept for audit and statistics.
type AlarmProcessing struct {
	ID       uint             `gorm:"primaryKey" json:"id"`
	AlarmID  uint             `gorm:"uniqueIndex;not null" json:"alarm_id"`
	Status   ProcessingStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Priority Priority         `gorm:"type:varchar(4);not null;index" json:"priority"`

	AssignedTo string     `gorm:"size:128" json:"assigned_to"`
	AssignedBy string     `gorm:"size:128" json:"assigned_by"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`

	AcknowledgedBy string     `gorm:"size:128" json:"acknowledged_by"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`

	ResolvedBy string     `gorm:"size:128" json:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Resolution string     `gorm:"type:text" json:"resolution"`

	ClosedBy string     `gorm:"size:128" json:"closed_by"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	// SLA deadline is computed once at creation from priority and never
	// silently recomputed afterwards.
	SLADeadline time.Time  `gorm:"not null" json:"sla_deadline"`
	SLABreached bool       `gorm:"default:false;index" json:"sla_breached"`
	SLAWarnedAt *time.Time `json:"sla_warned_at,omitempty"`

	EscalationLevel  int    `gorm:"default:0" json:"escalation_level"`
	EscalatedTo      string `gorm:"size:128" json:"escalated_to"`
	EscalationReason string `gorm:"type:text" json:"escalation_reason"`

	// Derived durations in minutes; set once, never recomputed
	ResponseTimeMinutes   *int `json:"response_time_minutes,omitempty"`
	ResolutionTimeMinutes *int `json:"resolution_time_minutes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Alarm Alarm `gorm:"foreignKey:AlarmID" json:"-"`
}

func (AlarmProcessing) TableName() string {
	return "alarm_processings"
}

// IsTerminal reports whether the record has reached a final state
func (p *AlarmProcessing) IsTerminal() bool {
	return p.Status == ProcessingClosed
}

// SLARemainingFraction returns the fraction of SLA time left at t, clamped
// to [0,1]. A record past its deadline returns 0.
func (p *AlarmProcessing) SLARemainingFraction(t time.Time) float64 {
	total := p.SLADeadline.Sub(p.CreatedAt)
	if total <= 0 {
		return 0
	}
	remaining := p.SLADeadline.Sub(t)
	if remaining <= 0 {
		return 0
	}
	frac := float64(remaining) / float64(total)
	if frac > 1 {
		return 1
	}
	return frac
}

// ProcessingHistory is the append-only audit trail of every transition and
// action on a processing record. Rows are write-once.
type ProcessingHistory struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	ProcessingID uint             `gorm:"not null;index" json:"processing_id"`
	AlarmID      uint             `gorm:"not null;index" json:"alarm_id"`
	Actor        string           `gorm:"size:128;not null" json:"actor"`
	Action       string           `gorm:"size:64;not null" json:"action"`
	OldStatus    ProcessingStatus `gorm:"type:varchar(20)" json:"old_status"`
	NewStatus    ProcessingStatus `gorm:"type:varchar(20)" json:"new_status"`
	OldAssignee  string           `gorm:"size:128" json:"old_assignee"`
	NewAssignee  string           `gorm:"size:128" json:"new_assignee"`
	Notes        string           `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time        `gorm:"index" json:"created_at"`
}

func (ProcessingHistory) TableName() string {
	return "processing_histories"
}
