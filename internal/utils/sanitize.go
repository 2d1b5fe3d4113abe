package utils

import (
	"regexp"
	"strings"
)

// Monitoring systems occasionally forward raw terminal output or broken
// encodings inside alert text. Everything that enters storage or a
// notification channel goes through these cleaners first.
var (
	// Control characters except tab, newline and carriage return
	controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

	// ANSI escape sequences (colors, cursor movement)
	ansiEscapePattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

	// One or more so a lone tab still collapses to a single space
	whitespaceRunPattern = regexp.MustCompile(`[ \t]+`)
)

// CleanText strips escape sequences and control characters from multi-line
// text, preserving newlines and tabs
func CleanText(s string) string {
	s = ansiEscapePattern.ReplaceAllString(s, "")
	s = controlCharPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// CleanLine is CleanText for single-line fields: newlines become spaces and
// runs of whitespace collapse to one space
func CleanLine(s string) string {
	s = CleanText(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = whitespaceRunPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
