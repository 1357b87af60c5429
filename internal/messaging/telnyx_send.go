package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

var telnyxSendTracer = otel.Tracer("retirement.internal.messaging.telnyx_send")

const telnyxMessagesURL = "https://api.telnyx.com/v2/messages"

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	messagingProfileID string
	from               string
	endpoint           string
	httpClient         *http.Client
	logger             *logging.Logger
	backoff            func(attempt int) time.Duration
}

var _ Sender = (*TelnyxSender)(nil)

// NewTelnyxSender builds a sender for Telnyx V2 API.
func NewTelnyxSender(apiKey, messagingProfileID, from string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		from:               from,
		endpoint:           telnyxMessagesURL,
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		logger:             logger,
		backoff:            jitterBackoff,
	}
}

// SendSMS dispatches one SMS via Telnyx, retrying transient failures.
func (s *TelnyxSender) SendSMS(ctx context.Context, to, body string) error {
	if s.apiKey == "" {
		return errors.New("messaging: telnyx api key missing")
	}
	if err := checkMessage(to, s.from, body); err != nil {
		return err
	}

	ctx, span := telnyxSendTracer.Start(ctx, "messaging.telnyx.send")
	defer span.End()
	span.SetAttributes(attribute.String("retirement.sms.provider", "telnyx"))

	payload := map[string]any{
		"from": s.from,
		"to":   to,
		"text": body,
	}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: failed to marshal telnyx payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempt; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.logger.Info("telnyx sms sent", "to_suffix", suffix(to))
				return nil
			}
			var errorBody map[string]any
			if len(respBody) > 0 && json.Unmarshal(respBody, &errorBody) == nil {
				lastErr = fmt.Errorf("telnyx send failed: status %d, body: %v", resp.StatusCode, errorBody)
			} else {
				lastErr = fmt.Errorf("telnyx send failed: status %d", resp.StatusCode)
			}
			if !retryable(resp.StatusCode) {
				break
			}
		}

		if attempt < maxSendAttempt {
			if err := sleepContext(ctx, s.backoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	span.RecordError(lastErr)
	s.logger.Error("failed to send telnyx sms", "error", lastErr, "to_suffix", suffix(to))
	return lastErr
}
