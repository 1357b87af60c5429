package leads

import "errors"

var (
	// ErrInvalidLead wraps request validation failures.
	ErrInvalidLead = errors.New("invalid lead")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("either email or phone is required")

	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("email is not a valid address")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")
)
