// Package strings holds text helpers shared by the CLI, the Grafana client
// and the event recorder.
package strings

import (
	"strings"
)

// Length limits used across dashsync.
const (
	// MaxEventMessageLen is the longest message stored in a Kubernetes Event.
	MaxEventMessageLen = 1024

	// MaxResponseSnippetLen bounds the part of an unstructured Grafana
	// response body kept in an error.
	MaxResponseSnippetLen = 200

	// MaxTableCellLen bounds free-text cells in CLI tables.
	MaxTableCellLen = 100
)

// MinTruncateLen is the minimum maxLen value for Truncate.
// Values smaller than this would not leave room for meaningful content plus "...".
const MinTruncateLen = 4

// Truncate collapses s onto one line and shortens it to maxLen runes,
// ending in "..." when something was cut. maxLen is clamped to MinTruncateLen.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
