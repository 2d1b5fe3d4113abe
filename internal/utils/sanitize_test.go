package utils

import "testing"

func TestCleanTextStripsControlCharacters(t *testing.T) {
	in := "disk\x00 failing\x07 on\x1f node"
	want := "disk failing on node"
	if got := CleanText(in); got != want {
		t.Errorf("CleanText(%q) = %q, want %q", in, got, want)
	}
}

func TestCleanTextKeepsNewlinesAndTabs(t *testing.T) {
	in := "line one\n\tline two"
	if got := CleanText(in); got != in {
		t.Errorf("CleanText(%q) = %q, want unchanged", in, got)
	}
}

func TestCleanTextStripsANSIEscapes(t *testing.T) {
	in := "\x1b[31mCRITICAL\x1b[0m disk full"
	want := "CRITICAL disk full"
	if got := CleanText(in); got != want {
		t.Errorf("CleanText(%q) = %q, want %q", in, got, want)
	}
}

func TestCleanLineCollapsesWhitespace(t *testing.T) {
	cases := map[string]string{
		"CPU   usage\thigh":        "CPU usage high",
		"queue\tdepth":             "queue depth",
		"first\nsecond":            "first second",
		"  padded  ":               "padded",
		"mixed\r\nline \t endings": "mixed line endings",
	}
	for in, want := range cases {
		if got := CleanLine(in); got != want {
			t.Errorf("CleanLine(%q) = %q, want %q", in, got, want)
		}
	}
}
