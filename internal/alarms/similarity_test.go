package alarms

import (
	"math"
	"testing"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

func TestSimilarityIdenticalAlarms(t *testing.T) {
	a := testAlarm()
	b := testAlarm()

	score := Similarity(a, b)
	if math.Abs(score-1.0) > 1e-9 {
		t.Errorf("identical alarms scored %f, want 1.0", score)
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	a := testAlarm()
	b := testAlarm()
	b.Title = "Memory usage critical on web-01"
	b.Host = "web-02"

	if x, y := Similarity(a, b), Similarity(b, a); math.Abs(x-y) > 1e-9 {
		t.Errorf("similarity is not symmetric: %f vs %f", x, y)
	}
}

func TestSimilarityUnrelatedAlarms(t *testing.T) {
	a := &database.Alarm{Title: "disk full", Host: "db-01", Service: "postgres"}
	b := &database.Alarm{Title: "login spike", Host: "auth-03", Service: "keycloak"}

	if score := Similarity(a, b); score > 0.1 {
		t.Errorf("unrelated alarms scored %f, want near 0", score)
	}
}

func TestSimilarityRenormalizesAbsentFields(t *testing.T) {
	// Only titles present: the title weight carries the full score
	a := &database.Alarm{Title: "service down"}
	b := &database.Alarm{Title: "service down"}

	if score := Similarity(a, b); math.Abs(score-1.0) > 1e-9 {
		t.Errorf("title-only identical alarms scored %f, want 1.0", score)
	}
}

func TestSimilarityBothEmpty(t *testing.T) {
	if score := Similarity(&database.Alarm{}, &database.Alarm{}); score != 0 {
		t.Errorf("empty alarms scored %f, want 0", score)
	}
}

func TestTextSimilarity(t *testing.T) {
	if got := TextSimilarity("high cpu load", "high cpu load"); got != 1 {
		t.Errorf("identical text = %f, want 1", got)
	}
	if got := TextSimilarity("", "anything"); got != 0 {
		t.Errorf("empty vs non-empty = %f, want 0", got)
	}
	if got := TextSimilarity("", ""); got != 0 {
		t.Errorf("empty vs empty = %f, want 0", got)
	}

	partial := TextSimilarity("high cpu load on web", "high memory load on web")
	if partial <= 0 || partial >= 1 {
		t.Errorf("overlapping text = %f, want strictly between 0 and 1", partial)
	}

	if got := TextSimilarity("alpha beta", "gamma delta"); got != 0 {
		t.Errorf("disjoint text = %f, want 0", got)
	}
}

func TestTagSimilarity(t *testing.T) {
	a := database.Labels{"env": "prod", "team": "core", "region": "eu"}
	b := database.Labels{"env": "prod", "team": "infra"}

	// 1 shared equal key (env) over 3 distinct keys
	got := tagSimilarity(a, b)
	if math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("tagSimilarity = %f, want 1/3", got)
	}
}
