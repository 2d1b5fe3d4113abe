package utils

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Millisecond, "45ms"},
		{1500 * time.Millisecond, "1.5s"},
		{2*time.Minute + 30*time.Second, "2m 30s"},
		{5 * time.Minute, "5m"},
		{time.Hour + 15*time.Minute, "1h 15m"},
		{2 * time.Hour, "2h"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateText(t *testing.T) {
	if got := TruncateText("short", 10); got != "short" {
		t.Errorf("unexpected truncation: %q", got)
	}
	if got := TruncateText("a rather long message", 10); got != "a rathe..." {
		t.Errorf("TruncateText = %q", got)
	}
	if got := TruncateText("multi\nline", 20); got != "multi line" {
		t.Errorf("newlines should flatten, got %q", got)
	}
	if got := TruncateText("anything", 2); got != "..." {
		t.Errorf("tiny budget should yield ellipsis, got %q", got)
	}
}
