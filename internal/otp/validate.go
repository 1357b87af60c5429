package otp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/retirement-leads-platform/internal/contact"
)

var codeRe = regexp.MustCompile(`^\d{6}$`)

// NormalizePhone validates a US phone number and returns its E.164 form.
func NormalizePhone(phone string) (string, error) {
	e164, err := contact.ParseUSPhone(phone)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return e164, nil
}

// ValidateCode trims code and checks it is exactly six digits.
func ValidateCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if !codeRe.MatchString(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}
