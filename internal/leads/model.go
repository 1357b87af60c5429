package leads

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/retirement-leads-platform/internal/contact"
)

// UTM holds campaign attribution captured from the landing page URL.
type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Lead is a captured prospect.
type Lead struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	Source        string         `json:"source,omitempty"`
	Score         int            `json:"leadScore"`
	Answers       map[string]any `json:"quizAnswers,omitempty"`
	UTM           UTM            `json:"utm"`
	PhoneVerified bool           `json:"phoneVerified"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// CaptureRequest is the body of POST /api/leads.
type CaptureRequest struct {
	Name        string         `json:"name" validate:"max=200"`
	FirstName   string         `json:"firstName" validate:"max=100"`
	LastName    string         `json:"lastName" validate:"max=100"`
	Email       string         `json:"email" validate:"required_without=Phone,omitempty,email,max=254"`
	Phone       string         `json:"phone" validate:"required_without=Email,omitempty,max=32"`
	Source      string         `json:"source" validate:"max=100"`
	Score       int            `json:"leadScore"`
	Answers     map[string]any `json:"quizAnswers"`
	UTMSource   string         `json:"utm_source" validate:"max=200"`
	UTMMedium   string         `json:"utm_medium" validate:"max=200"`
	UTMCampaign string         `json:"utm_campaign" validate:"max=200"`
	UTMTerm     string         `json:"utm_term" validate:"max=200"`
	UTMContent  string         `json:"utm_content" validate:"max=200"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims fields, lowercases the email and converts US phones to E.164.
func (r *CaptureRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.Name == "" {
		r.Name = strings.TrimSpace(r.FirstName + " " + r.LastName)
	}
	r.Email = contact.NormalizeEmail(r.Email)
	if e164, err := contact.ParseUSPhone(r.Phone); err == nil {
		r.Phone = e164
	} else {
		r.Phone = contact.NormalizePhone(r.Phone)
	}
	r.Source = strings.TrimSpace(r.Source)
}

// Validate checks the request. Errors wrap ErrInvalidLead and, where one
// applies, a more specific sentinel.
func (r *CaptureRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidLead, err)
	}
	for _, fe := range verrs {
		switch {
		case fe.Tag() == "required_without":
			return fmt.Errorf("%w: %w", ErrInvalidLead, ErrMissingContact)
		case fe.Field() == "Email" && fe.Tag() == "email":
			return fmt.Errorf("%w: %w", ErrInvalidLead, ErrInvalidEmail)
		}
	}
	fe := verrs[0]
	return fmt.Errorf("%w: %s failed %s", ErrInvalidLead, fieldName(fe.Field()), fe.Tag())
}

func (r *CaptureRequest) lead() *Lead {
	return &Lead{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Source:  r.Source,
		Score:   r.Score,
		Answers: r.Answers,
		UTM: UTM{
			Source:   strings.TrimSpace(r.UTMSource),
			Medium:   strings.TrimSpace(r.UTMMedium),
			Campaign: strings.TrimSpace(r.UTMCampaign),
			Term:     strings.TrimSpace(r.UTMTerm),
			Content:  strings.TrimSpace(r.UTMContent),
		},
	}
}

func fieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
