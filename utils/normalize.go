package utils

import (
	"strings"
	"unicode"
)

// NormalizeEmail lowers and trims an email for matching purposes.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhoneDigits strips every non-digit rune, so that
// "(555) 123-4567" and "555-123-4567" compare equal.
func NormalizePhoneDigits(phone string) string {
	var out strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// NormalizeWhitespace trims surrounding whitespace, preserving case.
func NormalizeWhitespace(value string) string {
	return strings.TrimSpace(value)
}

// NormalizeName lowers and trims a display name for matching purposes.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeHandle reduces a site handle to a URL-safe slug:
// lower-cased, spaces to hyphens, anything outside [a-z0-9-_] dropped.
func NormalizeHandle(handle string) string {
	handle = strings.ToLower(strings.TrimSpace(handle))
	handle = strings.ReplaceAll(handle, " ", "-")
	var out strings.Builder
	for _, r := range handle {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		}
	}
	return strings.Trim(out.String(), "-")
}
