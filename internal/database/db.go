package database

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Msg("database connection established")
	return nil
}

// GetDB returns the global database instance
func GetDB() *gorm.DB {
	return DB
}

// AutoMigrate runs database migrations for all core models
func AutoMigrate() error {
	log.Info().Msg("running database migrations")

	err := DB.AutoMigrate(
		&Alarm{},
		&AlarmSource{},
		&DedupSettings{},
		&NoiseRule{},
		&RuleExecutionLog{},
		&AlarmProcessing{},
		&ProcessingHistory{},
		&LifecycleRule{},
		&EscalationPolicy{},
		&Team{},
		&TeamMember{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("database migrations completed")
	return nil
}

// InitializeDefaults creates default records if they don't exist: dedup
// settings, the built-in escalation policy and the default lifecycle rules.
func InitializeDefaults() error {
	if _, err := GetOrCreateDedupSettings(DB); err != nil {
		return fmt.Errorf("failed to initialize dedup settings: %w", err)
	}

	if err := seedEscalationPolicy(DB); err != nil {
		return fmt.Errorf("failed to seed escalation policy: %w", err)
	}

	if err := seedLifecycleRules(DB); err != nil {
		return fmt.Errorf("failed to seed lifecycle rules: %w", err)
	}

	log.Info().Msg("default database records initialized")
	return nil
}

func seedEscalationPolicy(db *gorm.DB) error {
	var existing EscalationPolicy
	err := db.Where("name = ?", "critical-default").First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	policy := &EscalationPolicy{
		Name:     "critical-default",
		Severity: SeverityCritical,
		Levels:   DefaultEscalationLevels(),
		Enabled:  true,
	}
	return db.Create(policy).Error
}

// defaultLifecycleRules returns the rule set seeded on first start:
// auto-ack noisy low/info alarms, warn near SLA breach, escalate stuck
// critical alarms, close resolved alarms that went quiet.
func defaultLifecycleRules() []LifecycleRule {
	return []LifecycleRule{
		{
			Name:     "auto-ack-low-severity",
			Priority: 10,
			Enabled:  true,
			Condition: JSONB{
				"severities":          []string{"low", "info"},
				"processing_statuses": []string{"pending"},
				"min_age_minutes":     5,
			},
			Action: LifecycleActionAcknowledge,
		},
		{
			Name:     "sla-warning-20-percent",
			Priority: 20,
			Enabled:  true,
			Condition: JSONB{
				"processing_statuses":   []string{"pending", "acknowledged", "investigating", "in_progress"},
				"sla_remaining_percent": 20,
			},
			Action: LifecycleActionSLAWarning,
			Params: JSONB{"notify_targets": []string{"assignee", "oncall"}},
		},
		{
			Name:     "auto-escalate-critical",
			Priority: 30,
			Enabled:  true,
			Condition: JSONB{
				"severities":          []string{"critical"},
				"processing_statuses": []string{"pending"},
				"min_age_minutes":     30,
			},
			Action: LifecycleActionEscalate,
			Params: JSONB{"policy_name": "critical-default"},
		},
		{
			Name:     "auto-close-resolved",
			Priority: 40,
			Enabled:  true,
			Condition: JSONB{
				"processing_statuses":       []string{"resolved"},
				"min_age_minutes":           1440,
				"min_resolved_idle_minutes": 120,
			},
			Action: LifecycleActionClose,
		},
	}
}

func seedLifecycleRules(db *gorm.DB) error {
	for _, rule := range defaultLifecycleRules() {
		var existing LifecycleRule
		err := db.Where("name = ?", rule.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Create(&rule).Error; err != nil {
			return err
		}
	}
	return nil
}
