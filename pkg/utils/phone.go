package utils

import "strings"

// DefaultCountryCode is assumed for numbers entered without one.
const DefaultCountryCode = "91"

const (
	maxE164Digits = 15
	maskRune      = "•"
	// visible head of a masked E.164 number: "+" and six digits.
	maskKeepHead = 7
	maskKeepTail = 4
)

// IsE164 reports whether s is "+" followed by 2 to 15 digits, the first non-zero.
func IsE164(s string) bool {
	if len(s) < 3 || len(s) > maxE164Digits+1 || s[0] != '+' || s[1] == '0' {
		return false
	}
	return allDigits(s[1:])
}

// MaskPhoneNumber keeps the country code, the next digits up to six, and the
// last four: +919876543210 -> +919876••3210. Anything that is not E.164
// shows only its last four characters.
func MaskPhoneNumber(phone string) string {
	phone = strings.TrimSpace(phone)
	if IsE164(phone) && len(phone) > maskKeepHead+maskKeepTail {
		hidden := len(phone) - maskKeepHead - maskKeepTail
		return phone[:maskKeepHead] + strings.Repeat(maskRune, hidden) + phone[len(phone)-maskKeepTail:]
	}
	if len(phone) > maskKeepTail {
		return strings.Repeat(maskRune, len(phone)-maskKeepTail) + phone[len(phone)-maskKeepTail:]
	}
	return strings.Repeat(maskRune, len(phone))
}

// NormalizePhone converts user-entered numbers to E.164. Formatting
// characters are dropped, "00" is read as the international prefix, a
// leading trunk "0" is removed, and numbers without a country code get
// DefaultCountryCode.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case strings.HasPrefix(cleaned, "+"):
		return cleaned
	case strings.HasPrefix(cleaned, "00"):
		return "+" + cleaned[2:]
	case strings.HasPrefix(cleaned, DefaultCountryCode) && len(cleaned) == len(DefaultCountryCode)+10:
		return "+" + cleaned
	case strings.HasPrefix(cleaned, "0"):
		return "+" + DefaultCountryCode + cleaned[1:]
	default:
		return "+" + DefaultCountryCode + cleaned
	}
}

// WhatsAppNumber is the bare-digit form the Graph API expects.
func WhatsAppNumber(phone string) string {
	return strings.TrimPrefix(NormalizePhone(phone), "+")
}

// FromWhatsAppID turns a Graph API wa_id, which always carries its country
// code, back into E.164.
func FromWhatsAppID(waID string) string {
	return "+" + strings.TrimPrefix(waID, "+")
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
