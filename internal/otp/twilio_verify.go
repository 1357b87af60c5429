package otp

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// verifyAPI is the subset of the Twilio Verify v2 client we call.
type verifyAPI interface {
	CreateVerification(serviceSid string, params *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error)
}

// TwilioVerifyProvider delegates code generation, delivery and checking to
// Twilio Verify. Twilio also enforces its own send rate limits per number.
type TwilioVerifyProvider struct {
	api        verifyAPI
	serviceSID string
	logger     *logging.Logger
}

var _ Provider = (*TwilioVerifyProvider)(nil)

// NewTwilioVerifyProvider creates a provider from account credentials.
func NewTwilioVerifyProvider(accountSID, authToken, serviceSID string, logger *logging.Logger) (*TwilioVerifyProvider, error) {
	if accountSID == "" || authToken == "" || serviceSID == "" {
		return nil, errors.New("otp: twilio verify credentials required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioVerifyProvider(client.VerifyV2, serviceSID, logger), nil
}

func newTwilioVerifyProvider(api verifyAPI, serviceSID string, logger *logging.Logger) *TwilioVerifyProvider {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioVerifyProvider{api: api, serviceSID: serviceSID, logger: logger}
}

// SendCode starts an SMS verification.
func (p *TwilioVerifyProvider) SendCode(ctx context.Context, phone string) error {
	_, span := otpTracer.Start(ctx, "otp.twilio_verify.send")
	defer span.End()
	span.SetAttributes(attribute.String("retirement.otp.provider", "twilio_verify"))

	params := &verify.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel("sms")

	resp, err := p.api.CreateVerification(p.serviceSID, params)
	if err != nil {
		span.RecordError(err)
		p.logger.Error("twilio verify send failed", "error", err, "phone_suffix", phoneSuffix(phone))
		return fmt.Errorf("otp: twilio verify send: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		span.SetAttributes(attribute.String("retirement.otp.verification_sid", *resp.Sid))
	}
	return nil
}

// CheckCode reports whether Twilio approved code for phone.
func (p *TwilioVerifyProvider) CheckCode(ctx context.Context, phone, code string) (bool, error) {
	_, span := otpTracer.Start(ctx, "otp.twilio_verify.check")
	defer span.End()

	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)

	resp, err := p.api.CreateVerificationCheck(p.serviceSID, params)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("otp: twilio verify check: %w", err)
	}
	approved := resp != nil && resp.Status != nil && *resp.Status == "approved"
	span.SetAttributes(attribute.Bool("retirement.otp.match", approved))
	return approved, nil
}
