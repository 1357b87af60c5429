package otp

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is a session's position in the verification lifecycle.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusSending      Status = "sending"
	StatusAwaitingCode Status = "awaiting_code"
	StatusVerifying    Status = "verifying"
	StatusVerified     Status = "verified"
	StatusFailed       Status = "failed"
)

const (
	DefaultMaxAttempts    = 3
	DefaultResendCooldown = 60 * time.Second
)

// Options configures a Session. Zero values fall back to the defaults.
type Options struct {
	MaxAttempts    int
	ResendCooldown time.Duration
	Clock          Clock

	// OnVerificationComplete fires once, on the transition into verified.
	OnVerificationComplete func(phone string)
	// OnVerificationFailed fires for every verify attempt that does not succeed.
	OnVerificationFailed func(err error)
}

// Snapshot is a point-in-time view of a session, safe to hand to clients.
type Snapshot struct {
	Phone             string    `json:"phone,omitempty"`
	Status            Status    `json:"status"`
	Attempts          int       `json:"attempts"`
	AttemptsRemaining int       `json:"attemptsRemaining"`
	ResendIn          int       `json:"resendIn"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Session is one phone's verification state machine. All methods are safe
// for concurrent use; at most one provider call runs at a time and overlapping
// Send, Resend or Verify calls get ErrBusy.
type Session struct {
	mu          sync.Mutex
	provider    Provider
	clock       Clock
	countdown   *Countdown
	maxAttempts int
	cooldown    time.Duration
	onComplete  func(string)
	onFailed    func(error)

	phone     string
	status    Status
	attempts  int
	updatedAt time.Time
	// generation is bumped by Reset so results of calls already in flight are discarded.
	generation uint64
}

// NewSession creates an idle session backed by provider.
func NewSession(provider Provider, opts Options) *Session {
	if provider == nil {
		panic("otp: provider required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.ResendCooldown <= 0 {
		opts.ResendCooldown = DefaultResendCooldown
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Session{
		provider:    provider,
		clock:       opts.Clock,
		countdown:   NewCountdown(opts.Clock),
		maxAttempts: opts.MaxAttempts,
		cooldown:    opts.ResendCooldown,
		onComplete:  opts.OnVerificationComplete,
		onFailed:    opts.OnVerificationFailed,
		status:      StatusIdle,
		updatedAt:   opts.Clock.Now(),
	}
}

// Send validates phone and asks the provider to deliver a code. On success the
// session awaits a code and the resend countdown starts. On provider failure
// the session returns to idle so the caller can retry immediately.
func (s *Session) Send(ctx context.Context, phone string) error {
	e164, err := NormalizePhone(phone)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch s.status {
	case StatusSending, StatusVerifying:
		s.mu.Unlock()
		return ErrBusy
	case StatusVerified:
		s.mu.Unlock()
		return ErrAlreadyVerified
	case StatusAwaitingCode, StatusFailed:
		s.mu.Unlock()
		return ErrCodeAlreadySent
	}
	s.phone = e164
	gen := s.transition(StatusSending)
	s.mu.Unlock()

	return s.deliver(ctx, e164, gen)
}

// Resend requests a fresh code once the countdown has reached zero. A
// successful resend restores the full attempt budget.
func (s *Session) Resend(ctx context.Context) error {
	s.mu.Lock()
	switch s.status {
	case StatusSending, StatusVerifying:
		s.mu.Unlock()
		return ErrBusy
	case StatusVerified:
		s.mu.Unlock()
		return ErrAlreadyVerified
	case StatusIdle:
		s.mu.Unlock()
		return ErrNoActiveCode
	}
	if left := s.countdown.Remaining(); left > 0 {
		s.mu.Unlock()
		return &CooldownError{Remaining: left}
	}
	phone := s.phone
	gen := s.transition(StatusSending)
	s.mu.Unlock()

	return s.deliver(ctx, phone, gen)
}

func (s *Session) deliver(ctx context.Context, phone string, gen uint64) error {
	err := s.provider.SendCode(ctx, phone)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return err
	}
	if err != nil {
		s.attempts = 0
		s.countdown.Cancel()
		s.transition(StatusIdle)
		return fmt.Errorf("otp: send code: %w", err)
	}
	s.attempts = 0
	s.countdown.Start(s.cooldown)
	s.transition(StatusAwaitingCode)
	return nil
}

// Verify checks code with the provider. A malformed code is rejected without
// consuming an attempt. A wrong code consumes one and returns *AttemptError;
// the last one moves the session to failed, where Verify returns
// ErrMaxAttempts without contacting the provider until Resend succeeds.
func (s *Session) Verify(ctx context.Context, code string) error {
	code, err := ValidateCode(code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch s.status {
	case StatusSending, StatusVerifying:
		s.mu.Unlock()
		return ErrBusy
	case StatusVerified:
		s.mu.Unlock()
		return ErrAlreadyVerified
	case StatusIdle:
		s.mu.Unlock()
		return ErrNoActiveCode
	case StatusFailed:
		s.mu.Unlock()
		return ErrMaxAttempts
	}
	phone := s.phone
	gen := s.transition(StatusVerifying)
	s.mu.Unlock()

	ok, checkErr := s.provider.CheckCode(ctx, phone, code)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		if checkErr != nil {
			return fmt.Errorf("otp: check code: %w", checkErr)
		}
		return ErrNoActiveCode
	}

	var result error
	switch {
	case checkErr != nil:
		// Transport failures cost no attempt.
		s.transition(StatusAwaitingCode)
		result = fmt.Errorf("otp: check code: %w", checkErr)
	case !ok:
		s.attempts++
		remaining := s.maxAttempts - s.attempts
		if remaining <= 0 {
			s.transition(StatusFailed)
		} else {
			s.transition(StatusAwaitingCode)
		}
		result = &AttemptError{Remaining: remaining}
	default:
		s.countdown.Cancel()
		s.transition(StatusVerified)
	}
	onComplete, onFailed := s.onComplete, s.onFailed
	s.mu.Unlock()

	if result != nil {
		if onFailed != nil {
			onFailed(result)
		}
		return result
	}
	if onComplete != nil {
		onComplete(phone)
	}
	return nil
}

// Reset returns the session to idle from any state, clearing counters and
// cancelling the countdown. Provider calls already in flight are ignored when
// they return.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phone = ""
	s.attempts = 0
	s.countdown.Cancel()
	s.transition(StatusIdle)
	s.generation++
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Phone:             s.phone,
		Status:            s.status,
		Attempts:          s.attempts,
		AttemptsRemaining: s.maxAttempts - s.attempts,
		ResendIn:          s.countdown.Seconds(),
		UpdatedAt:         s.updatedAt,
	}
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsVerified reports whether the session reached verified.
func (s *Session) IsVerified() bool {
	return s.Status() == StatusVerified
}

// transition must be called with s.mu held. It returns the current generation.
func (s *Session) transition(next Status) uint64 {
	s.status = next
	s.updatedAt = s.clock.Now()
	return s.generation
}
