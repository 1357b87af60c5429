package otp

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPhone is returned before any provider call when the phone
	// number is not a plausible US number.
	ErrInvalidPhone = errors.New("otp: invalid phone number")
	// ErrInvalidCode is returned when a submitted code is not exactly 6 digits.
	// It does not consume an attempt.
	ErrInvalidCode = errors.New("otp: code must be 6 digits")
	// ErrCodeMismatch is matched by AttemptError.
	ErrCodeMismatch = errors.New("otp: code does not match")
	// ErrMaxAttempts rejects verification until a resend succeeds.
	ErrMaxAttempts = errors.New("otp: maximum verification attempts reached")
	// ErrResendCooldown is matched by CooldownError.
	ErrResendCooldown = errors.New("otp: resend not yet allowed")
	// ErrBusy is returned while another provider call is in flight for the session.
	ErrBusy = errors.New("otp: another request is in progress")

	ErrNoActiveCode    = errors.New("otp: no code has been sent")
	ErrCodeAlreadySent = errors.New("otp: code already sent")
	ErrAlreadyVerified = errors.New("otp: phone already verified")
	ErrSessionNotFound = errors.New("otp: session not found")
)

// AttemptError reports a wrong code and how many attempts are left.
type AttemptError struct {
	Remaining int
}

func (e *AttemptError) Error() string {
	if e.Remaining <= 0 {
		return "otp: code does not match, no attempts remaining"
	}
	return fmt.Sprintf("otp: code does not match, %d attempts remaining", e.Remaining)
}

func (e *AttemptError) Is(target error) bool {
	if target == ErrCodeMismatch {
		return true
	}
	return e.Remaining <= 0 && target == ErrMaxAttempts
}

// CooldownError reports how long a caller must wait before resending.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp: resend available in %ds", ceilSeconds(e.Remaining))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrResendCooldown
}
