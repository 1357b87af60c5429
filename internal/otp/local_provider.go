package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

var otpTracer = otel.Tracer("retirement.internal.otp")

const (
	DefaultCodeTTL     = 10 * time.Minute
	defaultMessageTmpl = "Your verification code is %s. It expires in %d minutes."
)

// LocalProvider generates codes itself, keeps them in a CodeStore and texts
// them through an SMSSender.
type LocalProvider struct {
	codes   CodeStore
	sms     SMSSender
	ttl     time.Duration
	logger  *logging.Logger
	message string
	// generate is swapped in tests to make codes predictable.
	generate func() (string, error)
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider builds a provider over codes and sms. ttl <= 0 uses DefaultCodeTTL.
func NewLocalProvider(codes CodeStore, sms SMSSender, ttl time.Duration, logger *logging.Logger) *LocalProvider {
	if codes == nil {
		panic("otp: code store required")
	}
	if sms == nil {
		panic("otp: sms sender required")
	}
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LocalProvider{
		codes:    codes,
		sms:      sms,
		ttl:      ttl,
		logger:   logger,
		message:  defaultMessageTmpl,
		generate: GenerateCode,
	}
}

// SendCode issues a new code, replacing any earlier one for phone.
func (p *LocalProvider) SendCode(ctx context.Context, phone string) error {
	ctx, span := otpTracer.Start(ctx, "otp.local.send")
	defer span.End()
	span.SetAttributes(attribute.String("retirement.otp.provider", "local"))

	code, err := p.generate()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("otp: generate code: %w", err)
	}
	if err := p.codes.Put(ctx, phone, code, p.ttl); err != nil {
		span.RecordError(err)
		return err
	}
	body := fmt.Sprintf(p.message, code, int(p.ttl/time.Minute))
	if err := p.sms.SendSMS(ctx, phone, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sms send failed")
		// Discard the undelivered code.
		if delErr := p.codes.Delete(ctx, phone); delErr != nil {
			p.logger.Warn("otp: failed to discard undelivered code", "error", delErr)
		}
		return fmt.Errorf("otp: deliver code: %w", err)
	}
	p.logger.Info("otp code sent", "provider", "local", "phone_suffix", phoneSuffix(phone))
	return nil
}

// CheckCode compares code with the stored one. A match consumes the code.
func (p *LocalProvider) CheckCode(ctx context.Context, phone, code string) (bool, error) {
	ctx, span := otpTracer.Start(ctx, "otp.local.check")
	defer span.End()

	stored, ok, err := p.codes.Get(ctx, phone)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		span.SetAttributes(attribute.Bool("retirement.otp.match", false))
		return false, nil
	}
	if err := p.codes.Delete(ctx, phone); err != nil {
		p.logger.Warn("otp: failed to consume code", "error", err)
	}
	span.SetAttributes(attribute.Bool("retirement.otp.match", true))
	return true, nil
}

// GenerateCode returns a uniformly random 6-digit code, zero padded.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func phoneSuffix(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return phone[len(phone)-4:]
}
