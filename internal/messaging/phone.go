package messaging

import (
	"regexp"
	"strings"
)

// Contractor phones are Brazilian numbers: country code 55 plus 11 digits.
var phonePattern = regexp.MustCompile(`^55\d{11}$`)

// ValidatePhone reports ErrInvalidPhoneFormat for anything other than
// "55" followed by exactly 11 digits.
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhoneFormat
	}
	return nil
}

// IsValidPhone is the boolean form of ValidatePhone.
func IsValidPhone(phone string) bool {
	return ValidatePhone(phone) == nil
}

// NormalizePhone keeps only the digits of value, so provider sender ids like
// "5511999999999@s.whatsapp.net" or "+55 (11) 99999-9999" collapse to the
// bare number used by the directory.
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if at := strings.IndexByte(value, '@'); at >= 0 {
		value = value[:at]
	}
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskPhone hides all but the last four digits.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
