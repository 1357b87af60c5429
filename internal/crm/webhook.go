// Package crm forwards captured leads to the CRM's inbound webhook.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var crmTracer = otel.Tracer("retirement.internal.crm")

const defaultWebhookTimeout = 10 * time.Second

// StatusError is returned for non-2xx webhook responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("crm: webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("crm: webhook returned status %d: %s", e.StatusCode, e.Body)
}

// WebhookClient posts JSON payloads to a single CRM webhook URL.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

// NewWebhookClient creates a client. timeout <= 0 uses a 10s default.
func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookClient{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the configured endpoint.
func (c *WebhookClient) URL() string { return c.url }

// Post sends payload once. It returns the HTTP status when a response was
// received, and an error for transport failures or non-2xx statuses.
func (c *WebhookClient) Post(ctx context.Context, payload any) (int, error) {
	if c.url == "" {
		return 0, errors.New("crm: webhook url not configured")
	}
	ctx, span := crmTracer.Start(ctx, "crm.webhook.post")
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("crm: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("crm: post webhook: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		span.RecordError(err)
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}
