package utils

import (
	"strings"
	"unicode"
)

// SanitizeString drops control characters other than newline, carriage
// return and tab, then trims surrounding whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// TruncateString truncates a string to max length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// MaskSensitive masks sensitive information
func MaskSensitive(s string, visibleChars int) string {
	if len(s) <= visibleChars {
		return strings.Repeat("*", len(s))
	}
	return s[:visibleChars] + strings.Repeat("*", len(s)-visibleChars)
}

// MaskStreamKey keeps the name part of a key readable and hides the
// query that carries the credentials. Keys without a query keep their
// first four characters.
func MaskStreamKey(key string) string {
	if key == "" {
		return ""
	}
	if i := strings.IndexByte(key, '?'); i >= 0 {
		return key[:i+1] + strings.Repeat("*", len(key)-i-1)
	}
	return MaskSensitive(key, 4)
}
