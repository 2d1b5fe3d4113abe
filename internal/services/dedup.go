package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/alarms"
	"github.com/alarmdeck/alarmdeck/internal/database"
)

// DedupResult is the outcome of running an alarm through deduplication
type DedupResult struct {
	IsDuplicate bool
	OriginalID  uint
	Fingerprint string
}

// DedupService decides whether an incoming alarm is a new problem or a
// repeat occurrence of a recent one. Settings are re-read from the database
// on every call, so strategy, window and threshold changes take effect
// without a restart.
type DedupService struct {
	db    *gorm.DB
	cache FingerprintCache
	now   func() time.Time
}

// NewDedupService creates a new deduplication service
func NewDedupService(db *gorm.DB, cache FingerprintCache) *DedupService {
	return &DedupService{db: db, cache: cache, now: time.Now}
}

// ProcessAlarm checks the alarm against the fingerprint cache and the recent
// alarm window. On a duplicate it folds the occurrence into the original
// (count, last-occurrence, reactivation) and reports the original's ID.
//
// Failure semantics: a broken cache degrades to database-only lookup; a
// broken database lookup logs and treats the alarm as new. Dedup problems
// never block ingestion.
func (s *DedupService) ProcessAlarm(ctx context.Context, alarm *database.Alarm) (*DedupResult, error) {
	settings, err := database.GetOrCreateDedupSettings(s.db)
	if err != nil {
		log.Warn().Err(err).Msg("dedup settings unavailable, passing alarm through")
		return &DedupResult{Fingerprint: alarms.Fingerprint(alarm, alarms.StrategyNormal)}, nil
	}

	fingerprint := alarms.Fingerprint(alarm, alarms.ParseStrategy(settings.Strategy))
	result := &DedupResult{Fingerprint: fingerprint}

	if !settings.Enabled {
		return result, nil
	}

	// Cheap path: exact fingerprint seen inside the window
	if originalID, ok, err := s.cache.Get(ctx, fingerprint); err != nil {
		log.Warn().Err(err).Msg("fingerprint cache unavailable, falling back to database lookup")
	} else if ok {
		if s.markDuplicate(originalID, alarm) {
			result.IsDuplicate = true
			result.OriginalID = originalID
			return result, nil
		}
		// Cached original vanished; drop the stale entry and keep looking
		_ = s.cache.Delete(ctx, fingerprint)
	}

	// Slow path: similarity against recent open alarms
	original, err := s.findSimilar(alarm, settings)
	if err != nil {
		log.Warn().Err(err).Str("title", alarm.Title).
			Msg("dedup candidate lookup failed, treating alarm as new")
		return result, nil
	}
	if original != nil && s.markDuplicate(original.ID, alarm) {
		result.IsDuplicate = true
		result.OriginalID = original.ID
		return result, nil
	}

	return result, nil
}

// CacheFingerprint records a newly persisted alarm's fingerprint so later
// exact repeats take the cheap path. Called by ingestion after Create.
func (s *DedupService) CacheFingerprint(ctx context.Context, fingerprint string, alarmID uint) {
	settings, err := database.GetOrCreateDedupSettings(s.db)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, fingerprint, alarmID, settings.Window()); err != nil {
		log.Warn().Err(err).Uint("alarm_id", alarmID).Msg("failed to cache fingerprint")
	}
}

// findSimilar scans the bounded set of recent alarms still open inside the
// window and returns the first one at or above the similarity threshold
func (s *DedupService) findSimilar(alarm *database.Alarm, settings *database.DedupSettings) (*database.Alarm, error) {
	cutoff := s.now().Add(-settings.Window())

	var candidates []database.Alarm
	err := s.db.
		Where("created_at > ?", cutoff).
		Where("status IN ?", []database.AlarmStatus{
			database.AlarmStatusActive,
			database.AlarmStatusAcknowledged,
			database.AlarmStatusResolved,
		}).
		Order("created_at DESC").
		Limit(settings.MaxCandidates).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		if score := alarms.Similarity(alarm, &candidates[i]); score >= settings.SimilarityThreshold {
			log.Debug().Float64("score", score).Uint("original_id", candidates[i].ID).
				Str("title", alarm.Title).Msg("similar recent alarm found")
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// markDuplicate increments the original's occurrence counter, refreshes its
// last-occurrence timestamp and reactivates it if it had been resolved.
// Returns false when the original no longer exists.
func (s *DedupService) markDuplicate(originalID uint, duplicate *database.Alarm) bool {
	var original database.Alarm
	if err := s.db.First(&original, originalID).Error; err != nil {
		return false
	}

	occurredAt := duplicate.LastOccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	updates := map[string]interface{}{
		"count":            gorm.Expr("count + 1"),
		"last_occurred_at": occurredAt,
	}
	if original.Status == database.AlarmStatusResolved {
		updates["status"] = database.AlarmStatusActive
	}

	if err := s.db.Model(&database.Alarm{}).Where("id = ?", originalID).Updates(updates).Error; err != nil {
		log.Error().Err(err).Uint("original_id", originalID).Msg("failed to fold duplicate into original")
		return false
	}
	return true
}
