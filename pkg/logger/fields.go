package logger

import (
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/utils"
)

// MaskPhone keeps the country code, the first three and last four digits.
func MaskPhone(key, phone string) zap.Field {
	return zap.String(key, utils.MaskPhoneNumber(phone))
}

// Redact hides the value when the key names a secret (otp, pan, password, ...).
func Redact(key, value string) zap.Field {
	if utils.IsSensitiveKey(key) {
		return zap.String(key, utils.RedactedValue)
	}
	return zap.String(key, value)
}

// SafeFields turns caller-supplied metadata into zap fields. Sensitive keys
// are redacted and E.164 strings masked.
func SafeFields(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if utils.IsSensitiveKey(k) {
			out = append(out, zap.String(k, utils.RedactedValue))
			continue
		}
		if s, ok := v.(string); ok && utils.IsE164(s) {
			out = append(out, MaskPhone(k, s))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
