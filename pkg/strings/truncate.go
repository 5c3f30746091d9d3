// Package strings holds small text helpers shared by the output packages.
package strings

import (
	"strings"
)

// DefaultDetailMaxLen bounds anomaly details in tables.
const DefaultDetailMaxLen = 100

// DefaultReplyMaxLen bounds reply errors on progress lines.
const DefaultReplyMaxLen = 160

// MinTruncateLen is the smallest useful limit: one rune plus "...".
const MinTruncateLen = 4

// Truncate collapses all whitespace runs, newlines included, into single
// spaces and cuts the result to maxLen runes, ending in "..." when cut.
// Limits below MinTruncateLen are raised to it.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
