package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/database"
	"github.com/alarmdeck/alarmdeck/internal/testhelpers"
)

// captureBroadcaster records broadcast events for assertions
type captureBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *captureBroadcaster) Broadcast(event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBroadcaster) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	copy(out, b.events)
	return out
}

func newIngestFixture(t *testing.T) (*IngestService, *gorm.DB, *captureBroadcaster) {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	dedup := NewDedupService(db, NewMemoryFingerprintCache())
	noise := NewNoiseService(db)
	lifecycle := NewLifecycleService(db, NewLogNotifier(), NewDBOncallResolver(db))
	ingest := NewIngestService(db, dedup, noise, lifecycle)
	broadcaster := &captureBroadcaster{}
	ingest.SetBroadcaster(broadcaster)
	return ingest, db, broadcaster
}

func TestIngestAcceptsAndCreatesProcessing(t *testing.T) {
	ingest, db, broadcaster := newIngestFixture(t)
	ctx := context.Background()

	alarm := testhelpers.NewAlarmBuilder().WithSeverity(database.SeverityCritical).BuildPtr()
	result, err := ingest.Submit(ctx, alarm)
	testhelpers.AssertNoError(t, err, "Submit")
	if !result.Accepted {
		t.Fatal("clean alarm must be accepted")
	}
	if result.Alarm == nil || result.Alarm.ID == 0 {
		t.Fatal("accepted alarm must be persisted")
	}
	if result.Fingerprint == "" {
		t.Fatal("fingerprint must be reported")
	}

	var processing database.AlarmProcessing
	if err := db.Where("alarm_id = ?", result.Alarm.ID).First(&processing).Error; err != nil {
		t.Fatalf("load processing: %v", err)
	}
	testhelpers.AssertEqual(t, database.PriorityP1, processing.Priority, "priority for critical")
	testhelpers.AssertEqual(t, database.ProcessingPending, processing.Status, "initial processing status")

	events := broadcaster.seen()
	if len(events) != 1 || events[0] != "alarm.created" {
		t.Fatalf("expected [alarm.created], got %v", events)
	}
}

func TestIngestValidation(t *testing.T) {
	ingest, _, _ := newIngestFixture(t)
	ctx := context.Background()

	cases := []*database.Alarm{
		nil,
		{Source: "test"},           // no title
		{Title: "something broke"}, // no source
		{Title: "x", Source: "test", Severity: "catastrophic"},
	}
	for i, alarm := range cases {
		if _, err := ingest.Submit(ctx, alarm); !errors.Is(err, ErrInvalidAlarm) {
			t.Errorf("case %d: expected ErrInvalidAlarm, got %v", i, err)
		}
	}
}

func TestIngestDefaultsSeverityAndStatus(t *testing.T) {
	ingest, _, _ := newIngestFixture(t)

	alarm := &database.Alarm{Title: "Backup job failed", Source: "cron"}
	result, err := ingest.Submit(context.Background(), alarm)
	testhelpers.AssertNoError(t, err, "Submit")
	testhelpers.AssertEqual(t, database.SeverityMedium, result.Alarm.Severity, "default severity")
	testhelpers.AssertEqual(t, database.AlarmStatusActive, result.Alarm.Status, "default status")
	if result.Alarm.UUID == "" {
		t.Fatal("a UUID must be assigned")
	}
}

func TestIngestDuplicateIsNotPersistedTwice(t *testing.T) {
	ingest, db, broadcaster := newIngestFixture(t)
	ctx := context.Background()

	first := testhelpers.NewAlarmBuilder().BuildPtr()
	res1, err := ingest.Submit(ctx, first)
	testhelpers.AssertNoError(t, err, "first Submit")

	second := testhelpers.NewAlarmBuilder().BuildPtr()
	res2, err := ingest.Submit(ctx, second)
	testhelpers.AssertNoError(t, err, "second Submit")
	if !res2.Duplicate {
		t.Fatal("identical repeat must be a duplicate")
	}
	testhelpers.AssertEqual(t, res1.Alarm.ID, res2.OriginalID, "original reference")

	var count int64
	if err := db.Model(&database.Alarm{}).Count(&count).Error; err != nil {
		t.Fatalf("count alarms: %v", err)
	}
	testhelpers.AssertEqual(t, int64(1), count, "persisted alarms")

	events := broadcaster.seen()
	testhelpers.AssertEqual(t, "alarm.duplicate", events[len(events)-1], "duplicate event")
}

func TestIngestSuppressedIsPersistedWithoutProcessing(t *testing.T) {
	ingest, db, _ := newIngestFixture(t)
	ctx := context.Background()

	rule := testhelpers.NewRuleBuilder().WithName("storm-guard").Build()
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule: %v", err)
	}
	// Three distinct alarms on the host fill the frequency budget
	seeds := []struct{ title, service string }{
		{"Disk failing", "raid"},
		{"Network unreachable", "eth0"},
		{"Certificate expired", "haproxy"},
	}
	for i, seed := range seeds {
		alarm := testhelpers.NewAlarmBuilder().
			WithTitle(seed.title).WithService(seed.service).WithHost("web-01").BuildPtr()
		if _, err := ingest.Submit(ctx, alarm); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	alarm := testhelpers.NewAlarmBuilder().
		WithTitle("Inode table full").WithService("kernel").WithHost("web-01").BuildPtr()
	result, err := ingest.Submit(ctx, alarm)
	testhelpers.AssertNoError(t, err, "Submit")
	if result.Accepted {
		t.Fatal("suppressed alarm must not be accepted")
	}
	if !result.Suppressed {
		t.Fatal("result must report suppression")
	}
	testhelpers.AssertEqual(t, "storm-guard", result.RuleName, "suppressing rule")

	// Kept for audit with suppressed status, but no lifecycle record
	var reloaded database.Alarm
	if err := db.First(&reloaded, result.Alarm.ID).Error; err != nil {
		t.Fatalf("suppressed alarm must be persisted: %v", err)
	}
	testhelpers.AssertEqual(t, database.AlarmStatusSuppressed, reloaded.Status, "persisted status")

	var processingCount int64
	if err := db.Model(&database.AlarmProcessing{}).
		Where("alarm_id = ?", result.Alarm.ID).Count(&processingCount).Error; err != nil {
		t.Fatalf("count processing: %v", err)
	}
	testhelpers.AssertEqual(t, int64(0), processingCount, "processing records for suppressed alarm")
}

func TestIngestDiscardedLeavesNoTrace(t *testing.T) {
	ingest, db, _ := newIngestFixture(t)
	ctx := context.Background()

	rule := testhelpers.NewRuleBuilder().WithName("drop-noise").
		WithType(database.RuleTypeCustom).
		WithAction(database.ActionDiscard).
		WithCondition(database.JSONB{"expression": "environment eq sandbox"}).
		Build()
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule: %v", err)
	}

	alarm := testhelpers.NewAlarmBuilder().WithEnvironment("sandbox").BuildPtr()
	result, err := ingest.Submit(ctx, alarm)
	testhelpers.AssertNoError(t, err, "Submit")
	if !result.Discarded {
		t.Fatal("result must report the discard")
	}
	testhelpers.AssertEqual(t, "drop-noise", result.RuleName, "discarding rule")

	var count int64
	if err := db.Model(&database.Alarm{}).Count(&count).Error; err != nil {
		t.Fatalf("count alarms: %v", err)
	}
	testhelpers.AssertEqual(t, int64(0), count, "discarded alarms are never persisted")
}

func TestIngestDowngradeLowersPriority(t *testing.T) {
	ingest, db, _ := newIngestFixture(t)
	ctx := context.Background()

	rule := testhelpers.NewRuleBuilder().WithName("soften-sandbox").
		WithType(database.RuleTypeCustom).
		WithAction(database.ActionDowngrade).
		WithCondition(database.JSONB{"expression": "environment eq sandbox"}).
		WithParams(database.JSONB{"severity": "low"}).
		Build()
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule: %v", err)
	}

	alarm := testhelpers.NewAlarmBuilder().
		WithSeverity(database.SeverityCritical).
		WithEnvironment("sandbox").
		BuildPtr()
	result, err := ingest.Submit(ctx, alarm)
	testhelpers.AssertNoError(t, err, "Submit")
	if !result.Accepted {
		t.Fatal("downgraded alarm is still accepted")
	}
	testhelpers.AssertEqual(t, database.SeverityLow, result.Alarm.Severity, "downgraded severity")

	var processing database.AlarmProcessing
	if err := db.Where("alarm_id = ?", result.Alarm.ID).First(&processing).Error; err != nil {
		t.Fatalf("load processing: %v", err)
	}
	testhelpers.AssertEqual(t, database.PriorityP4, processing.Priority, "priority follows downgraded severity")
}

func TestIngestDelayedAlarmCarriesReleaseTime(t *testing.T) {
	ingest, db, _ := newIngestFixture(t)
	ctx := context.Background()

	rule := testhelpers.NewRuleBuilder().WithName("hold-sandbox").
		WithType(database.RuleTypeCustom).
		WithAction(database.ActionDelay).
		WithCondition(database.JSONB{"expression": "environment eq sandbox"}).
		WithParams(database.JSONB{"delay_minutes": float64(10)}).
		Build()
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule: %v", err)
	}

	alarm := testhelpers.NewAlarmBuilder().WithEnvironment("sandbox").BuildPtr()
	result, err := ingest.Submit(ctx, alarm)
	testhelpers.AssertNoError(t, err, "Submit")
	if !result.Accepted {
		t.Fatal("delayed alarm is still accepted")
	}

	var reloaded database.Alarm
	if err := db.First(&reloaded, result.Alarm.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := reloaded.Metadata["delayed_until"]; !ok {
		t.Fatal("delayed alarm must carry its release time in metadata")
	}
}

func TestIngestAggregatedAlarmCarriesWindowInMinutes(t *testing.T) {
	ingest, db, _ := newIngestFixture(t)
	ctx := context.Background()

	rule := testhelpers.NewRuleBuilder().WithName("batch-sandbox").
		WithType(database.RuleTypeCustom).
		WithAction(database.ActionAggregate).
		WithCondition(database.JSONB{"expression": "environment eq sandbox"}).
		WithParams(database.JSONB{
			"group_by":       []interface{}{"service"},
			"window_minutes": float64(10),
		}).
		Build()
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule: %v", err)
	}

	alarm := testhelpers.NewAlarmBuilder().WithEnvironment("sandbox").BuildPtr()
	result, err := ingest.Submit(ctx, alarm)
	testhelpers.AssertNoError(t, err, "Submit")
	if !result.Accepted {
		t.Fatal("aggregated alarm is still accepted")
	}
	testhelpers.AssertEqual(t, "nginx", result.Alarm.Metadata["aggregation_key"], "aggregation key")
	testhelpers.AssertEqual(t, 10, result.Alarm.Metadata["aggregation_window_minutes"], "window in minutes")
}

func TestIngestSubmitBatchContinuesPastFailures(t *testing.T) {
	ingest, db, _ := newIngestFixture(t)

	batch := []*database.Alarm{
		testhelpers.NewAlarmBuilder().WithTitle("First problem").BuildPtr(),
		{Source: "test"}, // invalid, no title
		testhelpers.NewAlarmBuilder().WithTitle("Second problem").WithHost("db-02").BuildPtr(),
	}
	results := ingest.SubmitBatch(context.Background(), batch)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Accepted || !results[2].Accepted {
		t.Fatal("valid alarms must be accepted")
	}
	if results[1].Accepted || results[1].Reason == "" {
		t.Fatal("invalid alarm must be reported with a reason")
	}

	var count int64
	if err := db.Model(&database.Alarm{}).Count(&count).Error; err != nil {
		t.Fatalf("count alarms: %v", err)
	}
	testhelpers.AssertEqual(t, int64(2), count, "persisted alarms")
}
