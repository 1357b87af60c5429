// Package leads captures funnel leads and fans them out to the CRM and the sales team.
package leads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/retirement-leads-platform/internal/crm"
	"github.com/wolfman30/retirement-leads-platform/internal/notify"
	"github.com/wolfman30/retirement-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

var leadsTracer = otel.Tracer("retirement.internal.leads")

const notifyTimeout = 30 * time.Second

// Dispatcher hands a lead to the CRM relay without waiting for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, lead crm.Lead)
}

// Notifier alerts the team about a new lead.
type Notifier interface {
	NotifyNewLead(ctx context.Context, lead notify.LeadSummary) error
}

// VerificationChecker reports whether a phone passed OTP verification.
type VerificationChecker interface {
	IsVerified(phone string) bool
}

// ServiceOptions wires the optional collaborators of Service.
type ServiceOptions struct {
	Relay    Dispatcher
	Notifier Notifier
	Verifier VerificationChecker
	Metrics  *metrics.FunnelMetrics
	Logger   *logging.Logger
}

// Service persists leads, then relays and announces them.
type Service struct {
	repo     Repository
	relay    Dispatcher
	notifier Notifier
	verifier VerificationChecker
	metrics  *metrics.FunnelMetrics
	logger   *logging.Logger
	pending  sync.WaitGroup
}

func NewService(repo Repository, opts ServiceOptions) *Service {
	if repo == nil {
		panic("leads: repository required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		relay:    opts.Relay,
		notifier: opts.Notifier,
		verifier: opts.Verifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Capture validates and stores a lead. Once the lead is stored the capture is
// successful; relay and notification outcomes never change the result.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*Lead, error) {
	ctx, span := leadsTracer.Start(ctx, "leads.capture")
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := req.lead()
	if s.verifier != nil && lead.Phone != "" {
		lead.PhoneVerified = s.verifier.IsVerified(lead.Phone)
	}

	saved, err := s.repo.Create(ctx, lead)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist lead")
		return nil, fmt.Errorf("leads: save: %w", err)
	}
	span.SetAttributes(
		attribute.String("lead.id", saved.ID),
		attribute.Bool("lead.phone_verified", saved.PhoneVerified),
	)
	s.metrics.ObserveLeadCaptured(saved.PhoneVerified)
	s.logger.Info("lead captured",
		"lead_id", saved.ID,
		"source", saved.Source,
		"score", saved.Score,
		"phone_verified", saved.PhoneVerified,
	)

	if s.relay != nil {
		s.relay.Dispatch(ctx, crmLead(saved, req.FirstName, req.LastName))
	}
	s.notify(ctx, saved)
	return saved, nil
}

// Get returns a stored lead.
func (s *Service) Get(ctx context.Context, id string) (*Lead, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns stored leads, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	return s.repo.List(ctx, filter)
}

// Wait blocks until in-flight team notifications finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) notify(ctx context.Context, lead *Lead) {
	if s.notifier == nil {
		return
	}
	summary := notify.LeadSummary{
		ID:            lead.ID,
		Name:          lead.Name,
		Email:         lead.Email,
		Phone:         lead.Phone,
		Source:        lead.Source,
		Score:         lead.Score,
		PhoneVerified: lead.PhoneVerified,
		Answers:       lead.Answers,
	}
	base := context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		nctx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyNewLead(nctx, summary); err != nil {
			s.logger.Warn("lead notification failed", "lead_id", summary.ID, "error", err)
		}
	}()
}

func crmLead(lead *Lead, firstName, lastName string) crm.Lead {
	return crm.Lead{
		ID:            lead.ID,
		Name:          lead.Name,
		FirstName:     firstName,
		LastName:      lastName,
		Email:         lead.Email,
		Phone:         lead.Phone,
		PhoneVerified: lead.PhoneVerified,
		Source:        lead.Source,
		Score:         lead.Score,
		Answers:       lead.Answers,
		UTMSource:     lead.UTM.Source,
		UTMMedium:     lead.UTM.Medium,
		UTMCampaign:   lead.UTM.Campaign,
		UTMTerm:       lead.UTM.Term,
		UTMContent:    lead.UTM.Content,
		CapturedAt:    lead.CreatedAt,
	}
}
