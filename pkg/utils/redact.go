package utils

import "strings"

// RedactedValue replaces sensitive values in logs and broadcasts.
const RedactedValue = "[REDACTED]"

// sensitiveKeywords are matched as case-insensitive substrings of a field or
// variable name. Substring matching over-redacts ("company" contains "pan");
// that is accepted.
var sensitiveKeywords = []string{"password", "otp", "pin", "aadhaar", "pan", "account"}

// IsSensitiveKey reports whether a field or variable name refers to a secret.
func IsSensitiveKey(name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
