package utils

import (
	"strings"
	"unicode"
)

// NormalizeName trims whitespace around a customer name
func NormalizeName(s string) string {
	return strings.TrimSpace(s)
}

// NormalizePhone reduces a phone number to digits only, the canonical form
// used for storage and lookup. Spaces, dashes and a leading + are dropped.
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if cleaned == "" {
		return ""
	}

	var result strings.Builder
	for _, r := range cleaned {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// IsValidPhone performs basic phone validation on the normalized form
func IsValidPhone(phone string) bool {
	normalized := NormalizePhone(phone)
	return len(normalized) >= 7
}
