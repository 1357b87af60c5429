// Package messaging sends outbound SMS through Telnyx or Twilio.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

var twilioSendTracer = otel.Tracer("retirement.internal.messaging.twilio_send")

const maxSendAttempt = 3

// Sender delivers a single text message.
type Sender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// messageAPI is the part of the Twilio 2010 API client used for sending.
type messageAPI interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioSender sends SMS through the Twilio Messages resource.
type TwilioSender struct {
	accountSID string
	from       string
	api        messageAPI
	logger     *logging.Logger
	backoff    func(attempt int) time.Duration
}

var _ Sender = (*TwilioSender)(nil)

// NewTwilioSender builds a sender backed by the twilio-go REST client.
func NewTwilioSender(accountSID, authToken, from string, logger *logging.Logger) *TwilioSender {
	var api messageAPI
	if accountSID != "" && authToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		api = client.Api
	}
	return newTwilioSender(api, accountSID, from, logger)
}

func newTwilioSender(api messageAPI, accountSID, from string, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSender{
		accountSID: accountSID,
		from:       from,
		api:        api,
		logger:     logger,
		backoff:    jitterBackoff,
	}
}

// SendSMS dispatches one SMS, retrying transport errors, 429s and 5xx.
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	if s.api == nil {
		return errors.New("messaging: twilio credentials missing")
	}
	if err := checkMessage(to, s.from, body); err != nil {
		return err
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("retirement.sms.provider", "twilio"))

	params := &twilioapi.CreateMessageParams{}
	params.SetPathAccountSid(s.accountSID)
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempt; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		msg, err := s.api.CreateMessage(params)
		if err == nil {
			sid := ""
			if msg != nil && msg.Sid != nil {
				sid = *msg.Sid
			}
			s.logger.Info("twilio sms sent", "to_suffix", suffix(to), "sid", sid)
			return nil
		}

		lastErr = fmt.Errorf("twilio send failed: %s", formatTwilioError(err))
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) && !retryable(restErr.Status) {
			break
		}

		if attempt < maxSendAttempt {
			if err := sleepContext(ctx, s.backoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	span.RecordError(lastErr)
	s.logger.Error("failed to send twilio sms", "error", lastErr, "to_suffix", suffix(to))
	return lastErr
}

func formatTwilioError(err error) string {
	var restErr *twilioclient.TwilioRestError
	if !errors.As(err, &restErr) {
		return err.Error()
	}
	msg := strings.TrimSpace(restErr.Message)
	if restErr.Code != 0 {
		return fmt.Sprintf("status %d code %d: %s", restErr.Status, restErr.Code, msg)
	}
	return fmt.Sprintf("status %d: %s", restErr.Status, msg)
}

func checkMessage(to, from, body string) error {
	if to == "" {
		return errors.New("messaging: to required")
	}
	if from == "" {
		return errors.New("messaging: from required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("messaging: body required")
	}
	return nil
}

// retryable excludes 4xx other than 429.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func jitterBackoff(int) time.Duration {
	return time.Duration(200+rand.Intn(300)) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func suffix(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return phone[len(phone)-4:]
}
