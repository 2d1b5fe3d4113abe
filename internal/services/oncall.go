package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// ErrTeamNotFound indicates the named team does not exist or is disabled
var ErrTeamNotFound = errors.New("team not found")

// OncallResolver answers "who is responsible" questions. The core only
// consumes this; roster management lives elsewhere.
type OncallResolver interface {
	// MembersAt returns the members of a team at the given escalation level
	MembersAt(ctx context.Context, team string, level int) ([]database.TeamMember, error)
	// OnDuty returns the team's currently on-duty member
	OnDuty(ctx context.Context, team string) (*database.TeamMember, error)
	// TeamForSystem resolves which team owns a service or host
	TeamForSystem(ctx context.Context, system string) (string, error)
}

// DBOncallResolver resolves responsibility from the teams/members tables
type DBOncallResolver struct {
	db *gorm.DB
}

// NewDBOncallResolver creates a database-backed oncall resolver
func NewDBOncallResolver(db *gorm.DB) *DBOncallResolver {
	return &DBOncallResolver{db: db}
}

// MembersAt returns the members of a team at the given escalation level,
// ordered by position
func (r *DBOncallResolver) MembersAt(ctx context.Context, team string, level int) ([]database.TeamMember, error) {
	teamRecord, err := r.findTeam(team)
	if err != nil {
		return nil, err
	}

	var members []database.TeamMember
	err = r.db.Where("team_id = ? AND level = ?", teamRecord.ID, level).
		Order("position ASC, id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// OnDuty returns the team's on-duty member, falling back to the first
// level-1 member when nobody is explicitly marked on duty
func (r *DBOncallResolver) OnDuty(ctx context.Context, team string) (*database.TeamMember, error) {
	teamRecord, err := r.findTeam(team)
	if err != nil {
		return nil, err
	}

	var member database.TeamMember
	err = r.db.Where("team_id = ? AND on_duty = ?", teamRecord.ID, true).
		Order("position ASC, id ASC").
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = r.db.Where("team_id = ?", teamRecord.ID).
			Order("level ASC, position ASC, id ASC").
			First(&member).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("team %q has no members", team)
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// TeamForSystem finds the team whose systems list contains the given
// service or host
func (r *DBOncallResolver) TeamForSystem(ctx context.Context, system string) (string, error) {
	if system == "" {
		return "", fmt.Errorf("%w: no system given", ErrTeamNotFound)
	}

	var teams []database.Team
	if err := r.db.Where("enabled = ?", true).Find(&teams).Error; err != nil {
		return "", err
	}
	for _, team := range teams {
		if team.Systems.Contains(system) {
			return team.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no team owns system %q", ErrTeamNotFound, system)
}

func (r *DBOncallResolver) findTeam(name string) (*database.Team, error) {
	var team database.Team
	err := r.db.Where("name = ? AND enabled = ?", name, true).First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrTeamNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}
