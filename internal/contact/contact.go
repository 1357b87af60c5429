// Package contact normalizes the email and phone values used to key leads,
// bookings and verification sessions.
package contact

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidUSPhone is returned when a value cannot be read as a US number.
var ErrInvalidUSPhone = errors.New("contact: phone must be a 10 digit US number")

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// NormalizePhone strips every character except digits and a leading "+".
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizeDigits(value)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(value, "+") {
		return "+" + digits
	}
	return digits
}

// Key picks the lookup key for a contact: the email when present, else the phone.
func Key(email, phone string) string {
	if key := NormalizeEmail(email); key != "" {
		return key
	}
	return NormalizePhone(phone)
}

// ParseUSPhone accepts 10 digits, or 11 digits with a leading country code 1,
// and returns the E.164 form (+1XXXXXXXXXX).
func ParseUSPhone(value string) (string, error) {
	digits := sanitizeDigits(value)
	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		digits = digits[1:]
	case len(digits) != 10:
		return "", ErrInvalidUSPhone
	}
	// NANP area and exchange codes never start with 0 or 1.
	if digits[0] < '2' || digits[3] < '2' {
		return "", ErrInvalidUSPhone
	}
	return "+1" + digits, nil
}

func sanitizeDigits(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}
