package services

import (
	"testing"

	"github.com/alarmdeck/alarmdeck/internal/database"
	"github.com/alarmdeck/alarmdeck/internal/testhelpers"
)

const policySeedYAML = `policies:
  - name: critical-default
    team: platform
    severity: critical
    levels:
      - level: 1
        delay_minutes: 0
        timeout_minutes: 5
        channels: [email, sms]
        auto_assign: true
      - level: 2
        delay_minutes: 5
        timeout_minutes: 10
        channels: [email, sms, phone]
teams:
  - name: platform
    systems: [nginx, postgres]
    members:
      - user_id: alice
        name: Alice
        email: alice@example.com
        level: 1
        position: 1
        on_duty: true
      - user_id: bob
        name: Bob
        level: 2
        position: 2
`

func TestLoadPolicyFileSeedsPoliciesAndTeams(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	path := testhelpers.WriteTestFile(t, "policies.yaml", policySeedYAML)

	if err := LoadPolicyFile(db, path); err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}

	var policy database.EscalationPolicy
	if err := db.Where("name = ?", "critical-default").First(&policy).Error; err != nil {
		t.Fatalf("load policy: %v", err)
	}
	testhelpers.AssertEqual(t, "platform", policy.Team, "policy team")
	testhelpers.AssertEqual(t, database.SeverityCritical, policy.Severity, "policy severity")
	if !policy.Enabled {
		t.Error("policy with no enabled key must default to enabled")
	}
	if len(policy.Levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(policy.Levels))
	}
	testhelpers.AssertSliceContains(t, policy.Levels[1].Channels, "phone", "second level channels")

	var team database.Team
	if err := db.Where("name = ?", "platform").First(&team).Error; err != nil {
		t.Fatalf("load team: %v", err)
	}
	testhelpers.AssertSliceContains(t, []string(team.Systems), "postgres", "team systems")

	var members []database.TeamMember
	if err := db.Where("team_id = ?", team.ID).Order("position ASC").Find(&members).Error; err != nil {
		t.Fatalf("load members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	testhelpers.AssertEqual(t, "alice", members[0].UserID, "first member")
	if !members[0].OnDuty {
		t.Error("alice must be on duty")
	}
}

func TestLoadPolicyFileReappliesCleanly(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	path := testhelpers.WriteTestFile(t, "policies.yaml", policySeedYAML)

	if err := LoadPolicyFile(db, path); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	// A shrunk roster replaces the stored one instead of stacking
	trimmed := `teams:
  - name: platform
    systems: [nginx]
    members:
      - user_id: carol
        level: 1
        on_duty: true
`
	path = testhelpers.WriteTestFile(t, "policies-v2.yaml", trimmed)
	if err := LoadPolicyFile(db, path); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	var teams []database.Team
	if err := db.Where("name = ?", "platform").Find(&teams).Error; err != nil {
		t.Fatalf("load teams: %v", err)
	}
	if len(teams) != 1 {
		t.Fatalf("re-applying must not duplicate the team, got %d rows", len(teams))
	}

	var members []database.TeamMember
	if err := db.Where("team_id = ?", teams[0].ID).Find(&members).Error; err != nil {
		t.Fatalf("load members: %v", err)
	}
	if len(members) != 1 || members[0].UserID != "carol" {
		t.Fatalf("roster must be replaced wholesale, got %+v", members)
	}
}

func TestLoadPolicyFileRejectsBrokenInput(t *testing.T) {
	db := testhelpers.SetupTestDB(t)

	if err := LoadPolicyFile(db, "/nonexistent/policies.yaml"); err == nil {
		t.Error("expected error for a missing file")
	}

	path := testhelpers.WriteTestFile(t, "broken.yaml", "policies: [\n")
	if err := LoadPolicyFile(db, path); err == nil {
		t.Error("expected error for unparsable YAML")
	}

	// A policy whose levels are out of order never reaches the database
	path = testhelpers.WriteTestFile(t, "bad-levels.yaml", `policies:
  - name: shuffled
    levels:
      - level: 2
        timeout_minutes: 5
        channels: [email]
`)
	if err := LoadPolicyFile(db, path); err == nil {
		t.Error("expected error for out-of-order levels")
	}
	var count int64
	db.Model(&database.EscalationPolicy{}).Count(&count)
	testhelpers.AssertEqual(t, int64(0), count, "no policies persisted")
}
