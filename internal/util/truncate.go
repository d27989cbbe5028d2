// Package util holds small text helpers for terminal output.
package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const ellipsis = "..."

// TruncateString truncates s to maxLen runes, ending in "..." when cut.
// It does not account for ANSI escape codes or wide characters; use
// TruncateANSI for styled terminal lines.
func TruncateString(s string, maxLen int) string {
	if maxLen <= len(ellipsis) {
		return ellipsis
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-len(ellipsis)]) + ellipsis
}

// TruncateANSI truncates s to maxWidth terminal columns, ending in "..." when
// cut. Escape sequences are preserved and do not count toward the width.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= len(ellipsis) {
		return ellipsis
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// ansi.Truncate counts the tail toward maxWidth
	return ansi.Truncate(s, maxWidth, ellipsis)
}

// FirstLine returns the first non-blank line of s, trimmed, with "..."
// appended when more non-blank lines follow.
func FirstLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	first := strings.TrimSpace(lines[0])
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) != "" {
			return first + " " + ellipsis
		}
	}
	return first
}
