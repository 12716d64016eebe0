// Package common provides the shared error taxonomy and small text helpers
// used by the ingestion and rendering layers.
package common

import (
	"html"
	"strings"
)

const briefLimit = 50

// EscapeContent HTML-escapes message text before it is stored or rendered.
func EscapeContent(s string) string {
	return html.EscapeString(s)
}

// BriefContent shortens content for log lines and status reports.
func BriefContent(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= briefLimit {
		return s
	}
	return string(r[:briefLimit]) + "…"
}

// RemoveFirstWord drops the leading word (typically a command) and returns the
// rest trimmed. Returns "" when there is nothing after the first word.
func RemoveFirstWord(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return ""
}
