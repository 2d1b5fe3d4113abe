package services

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// policyFile is the on-disk shape of an escalation policy seed file
type policyFile struct {
	Policies []policyEntry `yaml:"policies"`
	Teams    []teamEntry   `yaml:"teams"`
}

type policyEntry struct {
	Name     string       `yaml:"name"`
	Team     string       `yaml:"team"`
	Severity string       `yaml:"severity"`
	Enabled  *bool        `yaml:"enabled"`
	Levels   []levelEntry `yaml:"levels"`
}

type levelEntry struct {
	Level          int      `yaml:"level"`
	DelayMinutes   int      `yaml:"delay_minutes"`
	TimeoutMinutes int      `yaml:"timeout_minutes"`
	Channels       []string `yaml:"channels"`
	AutoAssign     bool     `yaml:"auto_assign"`
}

type teamEntry struct {
	Name    string        `yaml:"name"`
	Systems []string      `yaml:"systems"`
	Enabled *bool         `yaml:"enabled"`
	Members []memberEntry `yaml:"members"`
}

type memberEntry struct {
	UserID   string `yaml:"user_id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	SlackID  string `yaml:"slack_id"`
	Level    int    `yaml:"level"`
	Position int    `yaml:"position"`
	OnDuty   bool   `yaml:"on_duty"`
}

// LoadPolicyFile reads an escalation policy seed file and upserts its
// policies and teams by name. Existing records with the same name are
// replaced, so the file can be re-applied on every start.
func LoadPolicyFile(db *gorm.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	for _, entry := range file.Policies {
		if err := upsertPolicy(db, entry); err != nil {
			return fmt.Errorf("policy %q: %w", entry.Name, err)
		}
	}
	for _, entry := range file.Teams {
		if err := upsertTeam(db, entry); err != nil {
			return fmt.Errorf("team %q: %w", entry.Name, err)
		}
	}

	log.Info().Str("path", path).Int("policies", len(file.Policies)).
		Int("teams", len(file.Teams)).Msg("escalation policy file applied")
	return nil
}

func upsertPolicy(db *gorm.DB, entry policyEntry) error {
	levels := make(database.EscalationLevels, 0, len(entry.Levels))
	for _, l := range entry.Levels {
		levels = append(levels, database.EscalationLevel{
			Level:          l.Level,
			DelayMinutes:   l.DelayMinutes,
			TimeoutMinutes: l.TimeoutMinutes,
			Channels:       l.Channels,
			AutoAssign:     l.AutoAssign,
		})
	}

	policy := database.EscalationPolicy{
		Name:     entry.Name,
		Team:     entry.Team,
		Severity: database.Severity(entry.Severity),
		Levels:   levels,
		Enabled:  entry.Enabled == nil || *entry.Enabled,
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	var existing database.EscalationPolicy
	err := db.Where("name = ?", entry.Name).First(&existing).Error
	if err == nil {
		policy.ID = existing.ID
		return db.Save(&policy).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return db.Create(&policy).Error
}

func upsertTeam(db *gorm.DB, entry teamEntry) error {
	if entry.Name == "" {
		return fmt.Errorf("team name is required")
	}

	team := database.Team{
		Name:    entry.Name,
		Systems: database.StringList(entry.Systems),
		Enabled: entry.Enabled == nil || *entry.Enabled,
	}

	var existing database.Team
	err := db.Where("name = ?", entry.Name).First(&existing).Error
	switch {
	case err == nil:
		team.ID = existing.ID
		if err := db.Save(&team).Error; err != nil {
			return err
		}
		// Members are replaced wholesale so removals in the file take effect
		if err := db.Where("team_id = ?", team.ID).Delete(&database.TeamMember{}).Error; err != nil {
			return err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(&team).Error; err != nil {
			return err
		}
	default:
		return err
	}

	for _, m := range entry.Members {
		if m.UserID == "" {
			return fmt.Errorf("member user_id is required")
		}
		level := m.Level
		if level == 0 {
			level = 1
		}
		member := database.TeamMember{
			TeamID:   team.ID,
			UserID:   m.UserID,
			Name:     m.Name,
			Email:    m.Email,
			Phone:    m.Phone,
			SlackID:  m.SlackID,
			Level:    level,
			Position: m.Position,
			OnDuty:   m.OnDuty,
		}
		if err := db.Create(&member).Error; err != nil {
			return err
		}
	}
	return nil
}
