package otp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/retirement-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 30 * time.Minute

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Session    Options
	SessionTTL time.Duration
	Metrics    *metrics.FunnelMetrics
	Logger     *logging.Logger
	// OnVerified is called after a phone reaches verified.
	OnVerified func(phone string)
}

// Manager owns one Session per phone number for the HTTP layer.
type Manager struct {
	provider Provider
	opts     Options
	ttl      time.Duration
	clock    Clock
	metrics  *metrics.FunnelMetrics
	logger   *logging.Logger
	onVerify func(string)

	mu       sync.Mutex
	sessions map[string]*Session
	verified map[string]time.Time
}

// NewManager creates a session registry backed by provider.
func NewManager(provider Provider, opts ManagerOptions) *Manager {
	if provider == nil {
		panic("otp: provider required")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Session.Clock == nil {
		opts.Session.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Manager{
		provider: provider,
		opts:     opts.Session,
		ttl:      opts.SessionTTL,
		clock:    opts.Session.Clock,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		onVerify: opts.OnVerified,
		sessions: make(map[string]*Session),
		verified: make(map[string]time.Time),
	}
}

// Send starts verification for phone. If a code is already outstanding it
// behaves like Resend, so the cooldown still applies.
func (m *Manager) Send(ctx context.Context, phone string) (Snapshot, error) {
	e164, err := NormalizePhone(phone)
	if err != nil {
		m.metrics.ObserveOTP("send", outcome(err))
		return Snapshot{}, err
	}
	sess := m.session(e164)
	err = sess.Send(ctx, e164)
	action := "send"
	if errors.Is(err, ErrCodeAlreadySent) {
		action = "resend"
		err = sess.Resend(ctx)
	}
	m.observe(action, e164, err)
	return sess.Snapshot(), err
}

// Resend requests a fresh code for an existing session.
func (m *Manager) Resend(ctx context.Context, phone string) (Snapshot, error) {
	sess, e164, err := m.lookup(phone)
	if err != nil {
		m.metrics.ObserveOTP("resend", outcome(err))
		return Snapshot{Phone: e164, Status: StatusIdle}, err
	}
	err = sess.Resend(ctx)
	m.observe("resend", e164, err)
	return sess.Snapshot(), err
}

// Verify checks code for phone.
func (m *Manager) Verify(ctx context.Context, phone, code string) (Snapshot, error) {
	sess, e164, err := m.lookup(phone)
	if err != nil {
		m.metrics.ObserveOTP("verify", outcome(err))
		return Snapshot{Phone: e164, Status: StatusIdle}, err
	}
	err = sess.Verify(ctx, code)
	if err == nil {
		m.metrics.ObserveOTP("verify", "verified")
	} else {
		m.metrics.ObserveOTP("verify", outcome(err))
	}
	return sess.Snapshot(), err
}

// Reset discards the session for phone, including any verified mark.
func (m *Manager) Reset(phone string) (Snapshot, error) {
	e164, err := NormalizePhone(phone)
	if err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	if sess, ok := m.sessions[e164]; ok {
		sess.Reset()
		delete(m.sessions, e164)
	}
	delete(m.verified, e164)
	m.mu.Unlock()
	m.metrics.ObserveOTP("reset", "ok")
	return Snapshot{Phone: e164, Status: StatusIdle, AttemptsRemaining: m.maxAttempts(), UpdatedAt: m.clock.Now()}, nil
}

// Status returns the snapshot for phone, or an idle one if none exists.
func (m *Manager) Status(phone string) (Snapshot, error) {
	sess, e164, err := m.lookup(phone)
	if errors.Is(err, ErrSessionNotFound) {
		return Snapshot{Phone: e164, Status: StatusIdle, AttemptsRemaining: m.maxAttempts(), UpdatedAt: m.clock.Now()}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// IsVerified reports whether phone completed verification within the session TTL.
func (m *Manager) IsVerified(phone string) bool {
	e164, err := NormalizePhone(phone)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.verified[e164]
	return ok && m.clock.Now().Sub(at) < m.ttl
}

// Sweep drops sessions and verified marks untouched for longer than the
// session TTL. Sessions with a provider call in flight are kept.
func (m *Manager) Sweep() int {
	cutoff := m.clock.Now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for phone, sess := range m.sessions {
		snap := sess.Snapshot()
		if snap.Status == StatusSending || snap.Status == StatusVerifying {
			continue
		}
		if snap.UpdatedAt.Before(cutoff) {
			delete(m.sessions, phone)
			removed++
		}
	}
	for phone, at := range m.verified {
		if at.Before(cutoff) {
			delete(m.verified, phone)
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("otp sessions swept", "count", n)
			}
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) session(e164 string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[e164]; ok {
		return sess
	}
	opts := m.opts
	opts.OnVerificationComplete = m.verifiedHook(opts.OnVerificationComplete)
	opts.OnVerificationFailed = m.failedHook(e164, opts.OnVerificationFailed)
	sess := NewSession(m.provider, opts)
	m.sessions[e164] = sess
	return sess
}

func (m *Manager) lookup(phone string) (*Session, string, error) {
	e164, err := NormalizePhone(phone)
	if err != nil {
		return nil, "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[e164]
	if !ok {
		return nil, e164, ErrSessionNotFound
	}
	return sess, e164, nil
}

func (m *Manager) verifiedHook(next func(string)) func(string) {
	return func(phone string) {
		m.mu.Lock()
		m.verified[phone] = m.clock.Now()
		m.mu.Unlock()
		m.logger.Info("phone verified", "phone_suffix", phoneSuffix(phone))
		if next != nil {
			next(phone)
		}
		if m.onVerify != nil {
			m.onVerify(phone)
		}
	}
}

func (m *Manager) failedHook(phone string, next func(error)) func(error) {
	return func(err error) {
		m.logger.Warn("otp verification failed", "phone_suffix", phoneSuffix(phone), "error", err)
		if next != nil {
			next(err)
		}
	}
}

func (m *Manager) observe(action, phone string, err error) {
	m.metrics.ObserveOTP(action, outcome(err))
	if err == nil {
		return
	}
	if outcome(err) == "error" {
		m.logger.Error("otp "+action+" failed", "phone_suffix", phoneSuffix(phone), "error", err)
		return
	}
	m.logger.Info("otp "+action+" rejected", "phone_suffix", phoneSuffix(phone), "error", err)
}

func (m *Manager) maxAttempts() int {
	if m.opts.MaxAttempts > 0 {
		return m.opts.MaxAttempts
	}
	return DefaultMaxAttempts
}

// outcome maps an error to a low-cardinality metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidCode):
		return "invalid"
	case errors.Is(err, ErrMaxAttempts):
		return "max_attempts"
	case errors.Is(err, ErrCodeMismatch):
		return "mismatch"
	case errors.Is(err, ErrResendCooldown):
		return "cooldown"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNoActiveCode),
		errors.Is(err, ErrAlreadyVerified), errors.Is(err, ErrCodeAlreadySent):
		return "rejected"
	default:
		return "error"
	}
}
