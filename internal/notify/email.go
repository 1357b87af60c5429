package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

const (
	// DefaultFromName is used when no sender display name is configured.
	DefaultFromName = "Retirement Leads"

	// leadAlertCategory tags team alerts in provider analytics.
	leadAlertCategory = "lead-alert"
)

// EmailSender delivers one team alert email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a team alert about a single lead. ReplyTo is the lead's own
// address when known, so a reply from the inbox reaches the prospect.
type EmailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
	ReplyTo string
	LeadID  string
}

// Sender identity shared by the SendGrid and SES senders.
type fromAddress struct {
	name  string
	email string
}

func newFromAddress(name, email string) fromAddress {
	if strings.TrimSpace(name) == "" {
		name = DefaultFromName
	}
	return fromAddress{name: name, email: email}
}

func (f fromAddress) String() string {
	return fmt.Sprintf("%s <%s>", f.name, f.email)
}

type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender posts lead alerts to the SendGrid v3 mail API.
type SendGridSender struct {
	client sendGridAPI
	from   fromAddress
	logger *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(client sendGridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client: client,
		from:   newFromAddress(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

// Send delivers msg. Any status of 400 or above is an error.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	response, err := s.client.SendWithContext(ctx, s.buildMail(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "lead_id", msg.LeadID)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected lead alert", "status", response.StatusCode, "body", response.Body, "lead_id", msg.LeadID)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("lead alert sent via sendgrid", "lead_id", msg.LeadID, "status", response.StatusCode)
	return nil
}

func (s *SendGridSender) buildMail(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.from.name, s.from.email))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))
	if msg.LeadID != "" {
		p.SetCustomArg("lead_id", msg.LeadID)
	}
	m.AddPersonalizations(p)

	m.AddContent(mail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	m.AddCategories(leadAlertCategory)
	return m
}

var _ EmailSender = (*SendGridSender)(nil)

// StubEmailSender logs alerts instead of sending them.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email disabled; lead alert logged", "lead_id", msg.LeadID, "subject", msg.Subject)
	return nil
}
