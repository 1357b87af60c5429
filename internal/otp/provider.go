// Package otp drives phone ownership checks: send a code, verify it with a
// bounded number of attempts, and gate resends behind a cooldown.
package otp

import "context"

// Provider delivers and checks codes. Implementations own code generation;
// the session never sees the code it verifies against.
type Provider interface {
	SendCode(ctx context.Context, phone string) error
	CheckCode(ctx context.Context, phone, code string) (bool, error)
}

// SMSSender delivers a plain text message. Satisfied by the messaging senders.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}
