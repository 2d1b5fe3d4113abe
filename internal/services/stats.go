package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// RuleStats summarizes one noise rule's recent effectiveness
type RuleStats struct {
	RuleID      uint       `json:"rule_id"`
	RuleName    string     `json:"rule_name"`
	Type        string     `json:"type"`
	Enabled     bool       `json:"enabled"`
	HitCount    int64      `json:"hit_count"`
	LastHitAt   *time.Time `json:"last_hit_at,omitempty"`
	Evaluations int64      `json:"evaluations"`
	Matches     int64      `json:"matches"`
	Errors      int64      `json:"errors"`
	AvgDuration float64    `json:"avg_duration_us"`
}

// ProcessingStats summarizes lifecycle throughput over a window
type ProcessingStats struct {
	Total             int64            `json:"total"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByPriority        map[string]int64 `json:"by_priority"`
	SLABreached       int64            `json:"sla_breached"`
	AvgResponseMins   float64          `json:"avg_response_minutes"`
	AvgResolutionMins float64          `json:"avg_resolution_minutes"`
}

// AlarmStats summarizes ingest volume over a window
type AlarmStats struct {
	Total      int64            `json:"total"`
	BySeverity map[string]int64 `json:"by_severity"`
	ByStatus   map[string]int64 `json:"by_status"`
	BySource   map[string]int64 `json:"by_source"`
	Suppressed int64            `json:"suppressed"`
	Duplicates int64            `json:"duplicates"`
}

// StatsService answers aggregate queries for the management API
type StatsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStatsService creates a new stats service
func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db, now: time.Now}
}

// RuleStats reports per-rule evaluation counters since the given time
func (s *StatsService) RuleStats(ctx context.Context, since time.Time) ([]RuleStats, error) {
	var rules []database.NoiseRule
	if err := s.db.WithContext(ctx).Order("priority ASC, id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}

	stats := make([]RuleStats, 0, len(rules))
	for _, rule := range rules {
		row := RuleStats{
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			Type:      string(rule.Type),
			Enabled:   rule.Enabled,
			HitCount:  rule.HitCount,
			LastHitAt: rule.LastHitAt,
		}

		type execAgg struct {
			Evaluations int64
			Matches     int64
			Errors      int64
			AvgDuration float64
		}
		var agg execAgg
		err := s.db.WithContext(ctx).Model(&database.RuleExecutionLog{}).
			Select("COUNT(*) AS evaluations,"+
				" SUM(CASE WHEN matched THEN 1 ELSE 0 END) AS matches,"+
				" SUM(CASE WHEN error <> '' THEN 1 ELSE 0 END) AS errors,"+
				" AVG(duration_us) AS avg_duration").
			Where("rule_id = ? AND created_at >= ?", rule.ID, since).
			Scan(&agg).Error
		if err != nil {
			return nil, err
		}
		row.Evaluations = agg.Evaluations
		row.Matches = agg.Matches
		row.Errors = agg.Errors
		row.AvgDuration = agg.AvgDuration

		stats = append(stats, row)
	}
	return stats, nil
}

// ProcessingStats reports lifecycle metrics for records created since the
// given time
func (s *StatsService) ProcessingStats(ctx context.Context, since time.Time) (*ProcessingStats, error) {
	stats := &ProcessingStats{
		ByStatus:   make(map[string]int64),
		ByPriority: make(map[string]int64),
	}
	base := s.db.WithContext(ctx).Model(&database.AlarmProcessing{}).Where("created_at >= ?", since)

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := s.groupCount(base, "status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := s.groupCount(base, "priority", stats.ByPriority); err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("sla_breached = ?", true).Count(&stats.SLABreached).Error; err != nil {
		return nil, err
	}

	type avgRow struct {
		Response   float64
		Resolution float64
	}
	var avg avgRow
	err := base.Session(&gorm.Session{}).
		Select("AVG(response_time_minutes) AS response, AVG(resolution_time_minutes) AS resolution").
		Scan(&avg).Error
	if err != nil {
		return nil, err
	}
	stats.AvgResponseMins = avg.Response
	stats.AvgResolutionMins = avg.Resolution
	return stats, nil
}

// AlarmStats reports ingest volume for alarms created since the given time
func (s *StatsService) AlarmStats(ctx context.Context, since time.Time) (*AlarmStats, error) {
	stats := &AlarmStats{
		BySeverity: make(map[string]int64),
		ByStatus:   make(map[string]int64),
		BySource:   make(map[string]int64),
	}
	base := s.db.WithContext(ctx).Model(&database.Alarm{}).Where("created_at >= ?", since)

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := s.groupCount(base, "severity", stats.BySeverity); err != nil {
		return nil, err
	}
	if err := s.groupCount(base, "status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := s.groupCount(base, "source", stats.BySource); err != nil {
		return nil, err
	}
	stats.Suppressed = stats.ByStatus[string(database.AlarmStatusSuppressed)]

	// Each merged occurrence beyond the first counts as one deduplicated alarm
	type dupRow struct{ Dups int64 }
	var dup dupRow
	err := base.Session(&gorm.Session{}).
		Select("COALESCE(SUM(count - 1), 0) AS dups").
		Where("count > 1").Scan(&dup).Error
	if err != nil {
		return nil, err
	}
	stats.Duplicates = dup.Dups
	return stats, nil
}

func (s *StatsService) groupCount(base *gorm.DB, column string, into map[string]int64) error {
	type row struct {
		Key   string
		Count int64
	}
	var rows []row
	err := base.Session(&gorm.Session{}).
		Select(column + " AS key, COUNT(*) AS count").
		Group(column).Scan(&rows).Error
	if err != nil {
		return err
	}
	for _, r := range rows {
		into[r.Key] = r.Count
	}
	return nil
}
