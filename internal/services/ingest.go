package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/database"
	"github.com/alarmdeck/alarmdeck/internal/utils"
)

// ErrInvalidAlarm indicates an incoming alarm failed validation
var ErrInvalidAlarm = errors.New("invalid alarm")

// EventBroadcaster pushes alarm events to connected streaming clients.
// The websocket hub implements it; a nil broadcaster disables streaming.
type EventBroadcaster interface {
	Broadcast(event string, payload interface{})
}

// IngestResult reports what the pipeline decided for one submitted alarm
type IngestResult struct {
	Accepted    bool            `json:"accepted"`
	Duplicate   bool            `json:"duplicate"`
	OriginalID  uint            `json:"original_id,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Suppressed  bool            `json:"suppressed"`
	Discarded   bool            `json:"discarded"`
	RuleName    string          `json:"rule_name,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Alarm       *database.Alarm `json:"alarm,omitempty"`
}

// IngestService runs submitted alarms through dedup, then noise reduction,
// then persistence and lifecycle setup. Order matters: a duplicate never
// reaches the rule engine, and a discarded alarm never reaches storage.
type IngestService struct {
	db          *gorm.DB
	dedup       *DedupService
	noise       *NoiseService
	lifecycle   *LifecycleService
	broadcaster EventBroadcaster
	now         func() time.Time
}

// NewIngestService creates a new ingest service
func NewIngestService(db *gorm.DB, dedup *DedupService, noise *NoiseService, lifecycle *LifecycleService) *IngestService {
	return &IngestService{
		db:        db,
		dedup:     dedup,
		noise:     noise,
		lifecycle: lifecycle,
		now:       time.Now,
	}
}

// SetBroadcaster wires the streaming hub in after construction
func (s *IngestService) SetBroadcaster(b EventBroadcaster) {
	s.broadcaster = b
}

// Submit pushes one alarm through the full pipeline
func (s *IngestService) Submit(ctx context.Context, alarm *database.Alarm) (*IngestResult, error) {
	if err := validateAlarm(alarm); err != nil {
		return nil, err
	}
	if alarm.UUID == "" {
		alarm.UUID = uuid.New().String()
	}

	dedupResult, err := s.dedup.ProcessAlarm(ctx, alarm)
	if err != nil {
		// Dedup degrades, it never blocks ingestion
		log.Warn().Err(err).Str("title", alarm.Title).Msg("dedup failed, treating alarm as new")
		dedupResult = &DedupResult{}
	}
	if dedupResult.IsDuplicate {
		s.broadcast("alarm.duplicate", map[string]interface{}{
			"original_id": dedupResult.OriginalID,
			"fingerprint": dedupResult.Fingerprint,
			"title":       alarm.Title,
		})
		return &IngestResult{
			Duplicate:   true,
			OriginalID:  dedupResult.OriginalID,
			Fingerprint: dedupResult.Fingerprint,
		}, nil
	}

	noiseResult, err := s.noise.Evaluate(ctx, alarm)
	if err != nil {
		log.Warn().Err(err).Str("title", alarm.Title).Msg("noise evaluation failed, forwarding alarm")
		noiseResult = &NoiseResult{Passed: true}
	}

	if noiseResult.Discarded {
		log.Info().Str("title", alarm.Title).Str("rule", noiseResult.RuleName).
			Msg("alarm discarded by noise rule")
		return &IngestResult{
			Discarded:   true,
			RuleName:    noiseResult.RuleName,
			Reason:      noiseResult.Reason,
			Fingerprint: dedupResult.Fingerprint,
		}, nil
	}

	if !noiseResult.Passed {
		// Suppressed alarms are kept for audit, just never surfaced as active
		alarm.Status = database.AlarmStatusSuppressed
	}
	if noiseResult.DowngradeTo != "" {
		log.Info().Str("title", alarm.Title).Str("rule", noiseResult.RuleName).
			Str("severity", string(noiseResult.DowngradeTo)).Msg("alarm severity downgraded by noise rule")
		alarm.Severity = noiseResult.DowngradeTo
	}
	if alarm.Metadata == nil {
		alarm.Metadata = database.JSONB{}
	}
	if noiseResult.ReleaseAt != nil {
		alarm.Metadata["delayed_until"] = noiseResult.ReleaseAt.UTC().Format(time.RFC3339)
	}
	if noiseResult.AggregationKey != "" {
		alarm.Metadata["aggregation_key"] = noiseResult.AggregationKey
		alarm.Metadata["aggregation_window_minutes"] = int(noiseResult.AggregationWindow.Minutes())
	}

	if err := s.db.WithContext(ctx).Create(alarm).Error; err != nil {
		return nil, fmt.Errorf("failed to persist alarm: %w", err)
	}
	if dedupResult.Fingerprint != "" {
		s.dedup.CacheFingerprint(ctx, dedupResult.Fingerprint, alarm.ID)
	}

	if alarm.Status != database.AlarmStatusSuppressed {
		priority := database.PriorityForSeverity(alarm.Severity)
		if _, err := s.lifecycle.CreateProcessing(ctx, alarm, priority); err != nil {
			log.Error().Err(err).Uint("alarm_id", alarm.ID).Msg("failed to create processing record")
		}
	}

	s.broadcast("alarm.created", alarm)

	return &IngestResult{
		Accepted:    alarm.Status != database.AlarmStatusSuppressed,
		Suppressed:  alarm.Status == database.AlarmStatusSuppressed,
		RuleName:    noiseResult.RuleName,
		Reason:      noiseResult.Reason,
		Fingerprint: dedupResult.Fingerprint,
		Alarm:       alarm,
	}, nil
}

// SubmitBatch ingests several alarms, continuing past individual failures
func (s *IngestService) SubmitBatch(ctx context.Context, alarms []*database.Alarm) []*IngestResult {
	results := make([]*IngestResult, 0, len(alarms))
	for _, alarm := range alarms {
		result, err := s.Submit(ctx, alarm)
		if err != nil {
			log.Error().Err(err).Str("title", alarm.Title).Msg("failed to ingest alarm")
			results = append(results, &IngestResult{Reason: err.Error()})
			continue
		}
		results = append(results, result)
	}
	return results
}

func (s *IngestService) broadcast(event string, payload interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(event, payload)
	}
}

// maxTitleLength bounds titles in storage and notifications
const maxTitleLength = 512

func validateAlarm(alarm *database.Alarm) error {
	if alarm == nil {
		return fmt.Errorf("%w: nil alarm", ErrInvalidAlarm)
	}
	alarm.Title = utils.TruncateText(utils.CleanLine(alarm.Title), maxTitleLength)
	alarm.Description = utils.CleanText(alarm.Description)
	if alarm.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidAlarm)
	}
	if alarm.Source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidAlarm)
	}
	if alarm.Severity == "" {
		alarm.Severity = database.SeverityMedium
	}
	if !alarm.Severity.IsValid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidAlarm, alarm.Severity)
	}
	if alarm.Status == "" {
		alarm.Status = database.AlarmStatusActive
	}
	return nil
}
