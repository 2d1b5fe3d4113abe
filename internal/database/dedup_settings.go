package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// DedupSettings controls the deduplication engine. A single row holds the
// live configuration; changes take effect on the next ProcessAlarm call
// without a restart.
type DedupSettings struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Enabled             bool      `json:"enabled"`
	Strategy            string    `gorm:"type:varchar(20);default:'normal'" json:"strategy"` // strict, normal, loose
	TimeWindowMinutes   int       `gorm:"default:30" json:"time_window_minutes"`
	SimilarityThreshold float64   `gorm:"type:decimal(3,2);default:0.80" json:"similarity_threshold"`
	MaxCandidates       int       `gorm:"default:50" json:"max_candidates"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (DedupSettings) TableName() string {
	return "dedup_settings"
}

// NewDefaultDedupSettings returns settings with default values
func NewDefaultDedupSettings() *DedupSettings {
	return &DedupSettings{
		Enabled:             true,
		Strategy:            "normal",
		TimeWindowMinutes:   30,
		SimilarityThreshold: 0.80,
		MaxCandidates:       50,
	}
}

// Window returns the dedup lookback window as a duration
func (s *DedupSettings) Window() time.Duration {
	return time.Duration(s.TimeWindowMinutes) * time.Minute
}

// GetOrCreateDedupSettings returns the settings row, creating defaults on first use
func GetOrCreateDedupSettings(db *gorm.DB) (*DedupSettings, error) {
	var settings DedupSettings
	err := db.First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := NewDefaultDedupSettings()
		if err := db.Create(defaults).Error; err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateDedupSettings persists changed settings
func UpdateDedupSettings(db *gorm.DB, settings *DedupSettings) error {
	if settings.TimeWindowMinutes <= 0 {
		return errors.New("time_window_minutes must be positive")
	}
	if settings.SimilarityThreshold < 0 || settings.SimilarityThreshold > 1 {
		return errors.New("similarity_threshold must be between 0 and 1")
	}
	switch settings.Strategy {
	case "strict", "normal", "loose":
	default:
		return errors.New("strategy must be one of: strict, normal, loose")
	}
	return db.Save(settings).Error
}
