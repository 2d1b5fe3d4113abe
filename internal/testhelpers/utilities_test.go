package testhelpers

import (
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestWriteTestFile(t *testing.T) {
	path := WriteTestFile(t, "policies/seed.yaml", "policies: []\n")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "policies: []\n" {
		t.Errorf("unexpected content: %q", data)
	}
	if !strings.HasSuffix(path, "policies/seed.yaml") {
		t.Errorf("unexpected path: %q", path)
	}
}

func TestConcurrentTest(t *testing.T) {
	var counter int64
	ConcurrentTest(t, 8, func(workerID int) {
		atomic.AddInt64(&counter, 1)
	})
	if counter != 8 {
		t.Errorf("expected 8 workers to run, got %d", counter)
	}
}

func TestAssertSliceContains(t *testing.T) {
	channels := []string{"email", "sms", "phone"}

	AssertSliceContains(t, channels, "sms", "present element")

	mockT := &testing.T{}
	AssertSliceContains(mockT, channels, "pager", "missing element")
	if !mockT.Failed() {
		t.Error("expected failure for a missing element")
	}
}

func TestAssertTimeWithin(t *testing.T) {
	base := time.Now()

	AssertTimeWithin(t, base.Add(time.Second), base, 2*time.Second, "inside tolerance")

	mockT := &testing.T{}
	AssertTimeWithin(mockT, base.Add(time.Minute), base, time.Second, "outside tolerance")
	if !mockT.Failed() {
		t.Error("expected failure outside tolerance")
	}
}
