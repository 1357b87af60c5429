package otp

import (
	"sync"
	"time"
)

// Clock abstracts time so countdowns can be fast-forwarded in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Countdown is a cancellable resend timer. It holds a deadline and computes
// Remaining from the clock on each read.
type Countdown struct {
	mu       sync.Mutex
	clock    Clock
	deadline time.Time
}

// NewCountdown creates a stopped countdown.
func NewCountdown(clock Clock) *Countdown {
	if clock == nil {
		clock = SystemClock
	}
	return &Countdown{clock: clock}
}

// Start (re)arms the countdown to expire d from now.
func (c *Countdown) Start(d time.Duration) {
	c.mu.Lock()
	c.deadline = c.clock.Now().Add(d)
	c.mu.Unlock()
}

// Cancel stops the countdown; Remaining reports zero afterwards.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	c.deadline = time.Time{}
	c.mu.Unlock()
}

// Remaining is the time left, never negative.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deadline.IsZero() {
		return 0
	}
	left := c.deadline.Sub(c.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Seconds is Remaining rounded up to whole seconds, as shown to the user.
func (c *Countdown) Seconds() int {
	return ceilSeconds(c.Remaining())
}

// Done reports whether the countdown has reached zero.
func (c *Countdown) Done() bool {
	return c.Remaining() == 0
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
