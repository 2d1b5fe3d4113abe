package alarms

import (
	"testing"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

func testAlarm() *database.Alarm {
	return &database.Alarm{
		Source:      "alertmanager",
		Title:       "CPU usage at 93% on web-01",
		Severity:    database.SeverityHigh,
		Host:        "web-01.prod.example.com:9100",
		Service:     "nginx-v2",
		Environment: "production",
		Tags:        database.Labels{"alertname": "HighCPU", "team": "platform"},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := testAlarm()
	b := testAlarm()

	for _, strategy := range []FingerprintStrategy{StrategyStrict, StrategyNormal, StrategyLoose} {
		fp1 := Fingerprint(a, strategy)
		fp2 := Fingerprint(b, strategy)
		if fp1 != fp2 {
			t.Errorf("strategy %s: identical alarms produced different fingerprints: %s vs %s", strategy, fp1, fp2)
		}
		if len(fp1) != fingerprintLength {
			t.Errorf("strategy %s: fingerprint length = %d, want %d", strategy, len(fp1), fingerprintLength)
		}
	}
}

func TestFingerprintNormalIgnoresVolatileReadings(t *testing.T) {
	a := testAlarm()
	b := testAlarm()
	b.Title = "CPU usage at 97% on web-01"

	if Fingerprint(a, StrategyNormal) != Fingerprint(b, StrategyNormal) {
		t.Error("normal strategy should ignore differing percentage readings")
	}
	if Fingerprint(a, StrategyStrict) == Fingerprint(b, StrategyStrict) {
		t.Error("strict strategy should distinguish differing titles")
	}
}

func TestFingerprintNormalFoldsHostVariants(t *testing.T) {
	a := testAlarm()
	b := testAlarm()
	b.Host = "WEB-01.staging.internal:9090"

	if Fingerprint(a, StrategyNormal) != Fingerprint(b, StrategyNormal) {
		t.Error("normal strategy should fold host port and domain variants")
	}
}

func TestFingerprintLooseMergesAcrossHosts(t *testing.T) {
	a := testAlarm()
	b := testAlarm()
	b.Host = "web-02"

	if Fingerprint(a, StrategyLoose) != Fingerprint(b, StrategyLoose) {
		t.Error("loose strategy should merge the same problem across hosts")
	}
	if Fingerprint(a, StrategyNormal) == Fingerprint(b, StrategyNormal) {
		t.Error("normal strategy should keep different hosts apart")
	}
}

func TestFingerprintIdentityTagsOnly(t *testing.T) {
	a := testAlarm()
	b := testAlarm()
	// Non-identity tags must not influence the fingerprint
	b.Tags = database.Labels{"alertname": "HighCPU", "team": "database"}

	if Fingerprint(a, StrategyNormal) != Fingerprint(b, StrategyNormal) {
		t.Error("non-identity tags changed the fingerprint")
	}

	c := testAlarm()
	c.Tags = database.Labels{"alertname": "HighMemory", "team": "platform"}
	if Fingerprint(a, StrategyNormal) == Fingerprint(c, StrategyNormal) {
		t.Error("identity tag change did not change the fingerprint")
	}
}

func TestFingerprintCustomFields(t *testing.T) {
	a := testAlarm()
	b := testAlarm()
	a.Tags["datacenter"] = "eu-1"
	b.Tags["datacenter"] = "us-2"

	if Fingerprint(a, StrategyNormal) != Fingerprint(b, StrategyNormal) {
		t.Error("tag outside the identity list should not affect default fingerprint")
	}
	if Fingerprint(a, StrategyNormal, "datacenter") == Fingerprint(b, StrategyNormal, "datacenter") {
		t.Error("custom field should participate when requested")
	}
}

func TestFingerprintEmptyAlarmFallsBack(t *testing.T) {
	alarm := &database.Alarm{Source: "test", Title: ""}
	fp := Fingerprint(alarm, StrategyNormal)
	if fp == "" {
		t.Fatal("fingerprint of empty alarm must not be empty")
	}
	if fp != coarseFingerprint(alarm) {
		t.Error("empty alarm should use the coarse fallback hash")
	}
}

func TestParseStrategy(t *testing.T) {
	if ParseStrategy("strict") != StrategyStrict {
		t.Error("strict not parsed")
	}
	if ParseStrategy("bogus") != StrategyNormal {
		t.Error("unknown strategy should default to normal")
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Disk 87% full on /var", "disk full on /var"},
		{"Job failed at 2024-05-01T12:30:00Z", "job failed at"},
		{"Latency above 300 ms for 5 minutes", "latency above for"},
		{"  Multiple   spaces  ", "multiple spaces"},
	}
	for _, c := range cases {
		if got := NormalizeTitle(c.in); got != c.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeHostAndService(t *testing.T) {
	if got := NormalizeHost("DB-03.prod.example.com:5432"); got != "db-03" {
		t.Errorf("NormalizeHost = %q, want db-03", got)
	}
	if got := NormalizeService("billing-v12"); got != "billing" {
		t.Errorf("NormalizeService = %q, want billing", got)
	}
	if got := NormalizeService("worker_3"); got != "worker" {
		t.Errorf("NormalizeService = %q, want worker", got)
	}
}
