package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// FailoverSender attempts a primary send, then falls back to a secondary provider on error.
type FailoverSender struct {
	primary       Sender
	secondary     Sender
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverSender builds a failover sender with named providers.
func NewFailoverSender(primary Sender, primaryName string, secondary Sender, secondaryName string, logger *logging.Logger) *FailoverSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ Sender = (*FailoverSender)(nil)

func (f *FailoverSender) SendSMS(ctx context.Context, to, body string) error {
	if f == nil || f.primary == nil {
		return errors.New("messaging: failover primary sender not configured")
	}
	err := f.primary.SendSMS(ctx, to, body)
	if err == nil || f.secondary == nil {
		return err
	}
	f.logger.Warn("primary sms send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
	)
	if fallbackErr := f.secondary.SendSMS(ctx, to, body); fallbackErr != nil {
		f.logger.Error("fallback sms send failed", "provider", f.secondaryName, "error", fallbackErr)
		return errors.Join(err, fallbackErr)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. Used in
// development when no SMS provider is configured.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a logging stub sender.
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Warn("sms not sent: no provider configured", "to", to, "body", body)
	return nil
}
