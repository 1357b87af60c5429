// Package notify alerts the sales team when a new lead arrives.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// SMSSender sends SMS messages to the team.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LeadSummary is the subset of a lead included in team notifications.
type LeadSummary struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Source        string
	Score         int
	PhoneVerified bool
	Answers       map[string]any
}

// Recipients lists who hears about new leads.
type Recipients struct {
	Emails []string
	SMS    []string
}

// ParseRecipients splits comma separated lists, dropping blanks.
func ParseRecipients(emails, sms string) Recipients {
	return Recipients{Emails: splitList(emails), SMS: splitList(sms)}
}

// Service handles sending notifications to the team.
type Service struct {
	email      EmailSender
	sms        SMSSender
	recipients Recipients
	logger     *logging.Logger
}

// NewService creates a notification service. Nil senders disable that channel.
func NewService(email EmailSender, sms SMSSender, recipients Recipients, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		sms:        sms,
		recipients: recipients,
		logger:     logger,
	}
}

// Enabled reports whether any channel has recipients.
func (s *Service) Enabled() bool {
	if s == nil {
		return false
	}
	return (s.email != nil && len(s.recipients.Emails) > 0) || (s.sms != nil && len(s.recipients.SMS) > 0)
}

// NotifyNewLead sends an email and/or SMS to every configured recipient.
// All recipients are attempted; the returned error joins the failures.
func (s *Service) NotifyNewLead(ctx context.Context, lead LeadSummary) error {
	if !s.Enabled() {
		return nil
	}

	var errs []error
	if s.email != nil {
		subject := fmt.Sprintf("New Lead - %s", displayName(lead))
		body := formatLeadEmail(lead)
		for _, recipient := range s.recipients.Emails {
			if err := s.email.Send(ctx, EmailMessage{
				To:      recipient,
				Subject: subject,
				Text:    body,
				ReplyTo: lead.Email,
				LeadID:  lead.ID,
			}); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if s.sms != nil {
		verified := ""
		if lead.PhoneVerified {
			verified = ", verified"
		}
		smsBody := truncate(fmt.Sprintf("New lead: %s (%s%s). Score %d. Source: %s",
			displayName(lead), lead.Phone, verified, lead.Score, lead.Source), 300)
		for _, recipient := range s.recipients.SMS {
			if err := s.sms.SendSMS(ctx, recipient, smsBody); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		s.logger.Warn("notify: lead notification failed", "lead_id", lead.ID, "failures", len(errs))
		return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func formatLeadEmail(lead LeadSummary) string {
	var b strings.Builder
	b.WriteString("A new lead has come in!\n\n")
	fmt.Fprintf(&b, "Name: %s\n", displayName(lead))
	fmt.Fprintf(&b, "Phone: %s", lead.Phone)
	if lead.PhoneVerified {
		b.WriteString(" (verified)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Email: %s\n", lead.Email)
	fmt.Fprintf(&b, "Source: %s\n", lead.Source)
	fmt.Fprintf(&b, "Lead score: %d\n", lead.Score)

	if len(lead.Answers) > 0 {
		b.WriteString("\nQuiz answers:\n")
		keys := make([]string, 0, len(lead.Answers))
		for k := range lead.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, lead.Answers[k])
		}
	}
	if lead.ID != "" {
		fmt.Fprintf(&b, "\nLead ID: %s\n", lead.ID)
	}
	return b.String()
}

func displayName(lead LeadSummary) string {
	if name := strings.TrimSpace(lead.Name); name != "" {
		return name
	}
	if lead.Email != "" {
		return lead.Email
	}
	return lead.Phone
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
