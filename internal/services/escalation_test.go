package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/database"
	"github.com/alarmdeck/alarmdeck/internal/testhelpers"
)

// captureNotifier records every notification for assertions
type captureNotifier struct {
	mu    sync.Mutex
	calls []capturedNotification
}

type capturedNotification struct {
	UserID   string
	AlarmID  uint
	Level    int
	Channels []string
}

func (n *captureNotifier) Notify(ctx context.Context, member database.TeamMember, alarm *database.Alarm, level int, channels []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, capturedNotification{
		UserID:   member.UserID,
		AlarmID:  alarm.ID,
		Level:    level,
		Channels: channels,
	})
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *captureNotifier) last() capturedNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

func newEscalationFixture(t *testing.T) (*EscalationService, *LifecycleService, *captureNotifier, *gorm.DB) {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	notifier := &captureNotifier{}
	oncall := NewDBOncallResolver(db)
	lifecycle := NewLifecycleService(db, notifier, oncall)
	escalation := NewEscalationService(db, oncall, notifier, lifecycle)
	lifecycle.SetEscalator(escalation)
	return escalation, lifecycle, notifier, db
}

func seedTeam(t *testing.T, db *gorm.DB) {
	t.Helper()
	builder := testhelpers.NewTeamBuilder("platform").
		WithSystems("nginx", "postgres").
		WithMember("alice", 1, true).
		WithMember("bob", 1, false).
		WithMember("carol", 2, false).
		WithMember("dave", 3, false)
	team := builder.Team()
	if err := db.Create(&team).Error; err != nil {
		t.Fatalf("create team: %v", err)
	}
	members := builder.Members(team.ID)
	for i := range members {
		if err := db.Create(&members[i]).Error; err != nil {
			t.Fatalf("create member: %v", err)
		}
	}
}

func seedEscalatingAlarm(t *testing.T, db *gorm.DB) *database.Alarm {
	t.Helper()
	alarm := testhelpers.NewAlarmBuilder().WithSeverity(database.SeverityCritical).BuildPtr()
	if err := db.Create(alarm).Error; err != nil {
		t.Fatalf("create alarm: %v", err)
	}
	return alarm
}

func TestEscalationTriggerNotifiesFirstLevel(t *testing.T) {
	escalation, lifecycle, notifier, db := newEscalationFixture(t)
	seedTeam(t, db)
	alarm := seedEscalatingAlarm(t, db)
	ctx := context.Background()

	started, err := escalation.Trigger(ctx, alarm.ID, "platform")
	testhelpers.AssertNoError(t, err, "Trigger")
	if !started {
		t.Fatal("trigger must start a run")
	}
	testhelpers.AssertEqual(t, 1, escalation.ActiveCount(), "active executions")

	// Default chain notifies both level 1 members
	testhelpers.AssertEqual(t, 2, notifier.count(), "level 1 notifications")

	// The first level 1 member gets auto-assigned
	processing, err := lifecycle.GetProcessing(ctx, alarm.ID)
	testhelpers.AssertNoError(t, err, "GetProcessing")
	testhelpers.AssertEqual(t, database.ProcessingEscalated, processing.Status, "processing status")
	testhelpers.AssertEqual(t, "alice", processing.AssignedTo, "auto-assigned responder")
	testhelpers.AssertEqual(t, 1, processing.EscalationLevel, "recorded level")
	testhelpers.AssertEqual(t, "platform", processing.EscalatedTo, "escalation target")
}

func TestEscalationTriggerResolvesTeamFromService(t *testing.T) {
	escalation, _, notifier, db := newEscalationFixture(t)
	seedTeam(t, db)
	alarm := seedEscalatingAlarm(t, db) // service nginx, owned by platform

	started, err := escalation.Trigger(context.Background(), alarm.ID, "")
	testhelpers.AssertNoError(t, err, "Trigger")
	if !started {
		t.Fatal("trigger must start a run")
	}
	if notifier.count() == 0 {
		t.Fatal("resolved team's responders must be notified")
	}

	status, err := escalation.Status(alarm.ID)
	testhelpers.AssertNoError(t, err, "Status")
	testhelpers.AssertEqual(t, "platform", status.Team, "resolved team")
}

func TestEscalationConcurrentTriggerRefused(t *testing.T) {
	escalation, _, _, db := newEscalationFixture(t)
	seedTeam(t, db)
	alarm := seedEscalatingAlarm(t, db)
	ctx := context.Background()

	if _, err := escalation.Trigger(ctx, alarm.ID, "platform"); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	started, err := escalation.Trigger(ctx, alarm.ID, "platform")
	if started {
		t.Fatal("second trigger must not start a run")
	}
	if !errors.Is(err, ErrAlreadyEscalating) {
		t.Fatalf("expected ErrAlreadyEscalating, got %v", err)
	}
	testhelpers.AssertEqual(t, 1, escalation.ActiveCount(), "active executions")
}

func TestEscalationNoRespondersFailsLoudly(t *testing.T) {
	escalation, _, _, db := newEscalationFixture(t)
	// Team exists but has no members
	team := testhelpers.NewTeamBuilder("ghosts").WithSystems("nginx").Team()
	if err := db.Create(&team).Error; err != nil {
		t.Fatalf("create team: %v", err)
	}
	alarm := seedEscalatingAlarm(t, db)

	started, err := escalation.Trigger(context.Background(), alarm.ID, "ghosts")
	if started {
		t.Fatal("run must not start without responders")
	}
	if !errors.Is(err, ErrNoResponders) {
		t.Fatalf("expected ErrNoResponders, got %v", err)
	}
	testhelpers.AssertEqual(t, 0, escalation.ActiveCount(), "active executions")
}

func TestEscalationTimeoutAdvancesLevel(t *testing.T) {
	escalation, _, notifier, db := newEscalationFixture(t)
	seedTeam(t, db)
	alarm := seedEscalatingAlarm(t, db)
	ctx := context.Background()

	base := time.Now()
	escalation.now = func() time.Time { return base }
	if _, err := escalation.Trigger(ctx, alarm.ID, "platform"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	firstWave := notifier.count()

	// Level 1 times out after 5 minutes
	escalation.now = func() time.Time { return base.Add(6 * time.Minute) }
	escalation.CheckTimeouts(ctx)

	status, err := escalation.Status(alarm.ID)
	testhelpers.AssertNoError(t, err, "Status")
	testhelpers.AssertEqual(t, 1, status.CurrentStep, "advanced to second step")
	testhelpers.AssertEqual(t, ExecutionEscalated, status.Status, "execution status")

	if notifier.count() != firstWave+1 {
		t.Fatalf("expected 1 level 2 notification, got %d", notifier.count()-firstWave)
	}
	testhelpers.AssertEqual(t, "carol", notifier.last().UserID, "level 2 responder")
	testhelpers.AssertEqual(t, 2, notifier.last().Level, "notification level")

	// A tick inside the new step's timeout does not advance again
	escalation.now = func() time.Time { return base.Add(8 * time.Minute) }
	escalation.CheckTimeouts(ctx)
	status, _ = escalation.Status(alarm.ID)
	testhelpers.AssertEqual(t, 1, status.CurrentStep, "step unchanged before timeout")
}

func TestEscalationAcknowledgeHaltsAdvancement(t *testing.T) {
	escalation, lifecycle, notifier, db := newEscalationFixture(t)
	seedTeam(t, db)
	alarm := seedEscalatingAlarm(t, db)
	ctx := context.Background()

	base := time.Now()
	escalation.now = func() time.Time { return base }
	if _, err := escalation.Trigger(ctx, alarm.ID, "platform"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	if err := escalation.Acknowledge(ctx, alarm.ID, "alice"); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	before := notifier.count()
	escalation.now = func() time.Time { return base.Add(time.Hour) }
	escalation.CheckTimeouts(ctx)
	testhelpers.AssertEqual(t, before, notifier.count(), "no notifications after acknowledgment")

	// Still visible for status queries
	status, err := escalation.Status(alarm.ID)
	testhelpers.AssertNoError(t, err, "Status")
	testhelpers.AssertEqual(t, ExecutionAcknowledged, status.Status, "execution status")
	testhelpers.AssertEqual(t, "alice", status.AcknowledgedBy, "acknowledging user")

	processing, err := lifecycle.GetProcessing(ctx, alarm.ID)
	testhelpers.AssertNoError(t, err, "GetProcessing")
	testhelpers.AssertEqual(t, database.ProcessingAcknowledged, processing.Status, "processing status")
}

func TestEscalationChainExhaustion(t *testing.T) {
	escalation, _, _, db := newEscalationFixture(t)
	seedTeam(t, db)
	alarm := seedEscalatingAlarm(t, db)
	ctx := context.Background()

	base := time.Now()
	escalation.now = func() time.Time { return base }
	if _, err := escalation.Trigger(ctx, alarm.ID, "platform"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	// Walk through all three default levels
	for _, offset := range []time.Duration{6 * time.Minute, 17 * time.Minute, 38 * time.Minute} {
		after := base.Add(offset)
		escalation.now = func() time.Time { return after }
		escalation.CheckTimeouts(ctx)
	}

	if _, err := escalation.Status(alarm.ID); !errors.Is(err, ErrNoExecution) {
		t.Fatalf("exhausted execution must be removed, got %v", err)
	}
	testhelpers.AssertEqual(t, 0, escalation.ActiveCount(), "active executions")
}

func TestEscalationResolveRemovesExecution(t *testing.T) {
	escalation, lifecycle, _, db := newEscalationFixture(t)
	seedTeam(t, db)
	alarm := seedEscalatingAlarm(t, db)
	ctx := context.Background()

	if _, err := escalation.Trigger(ctx, alarm.ID, "platform"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if err := escalation.Resolve(ctx, alarm.ID, "bob"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	testhelpers.AssertEqual(t, 0, escalation.ActiveCount(), "active executions")
	if err := escalation.Acknowledge(ctx, alarm.ID, "bob"); !errors.Is(err, ErrNoExecution) {
		t.Fatalf("expected ErrNoExecution after resolve, got %v", err)
	}

	processing, err := lifecycle.GetProcessing(ctx, alarm.ID)
	testhelpers.AssertNoError(t, err, "GetProcessing")
	testhelpers.AssertEqual(t, database.ProcessingResolved, processing.Status, "processing status")
}

func TestEscalationUsesMatchingPolicy(t *testing.T) {
	escalation, _, notifier, db := newEscalationFixture(t)
	seedTeam(t, db)
	alarm := seedEscalatingAlarm(t, db)

	// A team+severity policy with a single level beats the default chain
	policy := database.EscalationPolicy{
		Name:     "critical-platform",
		Team:     "platform",
		Severity: database.SeverityCritical,
		Enabled:  true,
		Levels: database.EscalationLevels{
			{Level: 2, DelayMinutes: 0, TimeoutMinutes: 15, Channels: []string{"phone"}},
		},
	}
	if err := db.Create(&policy).Error; err != nil {
		t.Fatalf("create policy: %v", err)
	}

	if _, err := escalation.Trigger(context.Background(), alarm.ID, "platform"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	testhelpers.AssertEqual(t, 1, notifier.count(), "only the policy's level notified")
	testhelpers.AssertEqual(t, "carol", notifier.last().UserID, "level 2 responder")

	status, err := escalation.Status(alarm.ID)
	testhelpers.AssertNoError(t, err, "Status")
	testhelpers.AssertEqual(t, 1, status.TotalSteps, "policy chain length")
}
