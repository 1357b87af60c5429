package crm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/retirement-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

const (
	defaultRelayWorkers   = 2
	defaultRelayQueueSize = 256
	recordTimeout         = 5 * time.Second
)

// Lead is the JSON body posted to the CRM webhook.
type Lead struct {
	ID            string         `json:"leadId"`
	Name          string         `json:"name,omitempty"`
	FirstName     string         `json:"firstName,omitempty"`
	LastName      string         `json:"lastName,omitempty"`
	Email         string         `json:"email,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	PhoneVerified bool           `json:"phoneVerified"`
	Source        string         `json:"source,omitempty"`
	Score         int            `json:"leadScore"`
	Answers       map[string]any `json:"quizAnswers,omitempty"`
	UTMSource     string         `json:"utm_source,omitempty"`
	UTMMedium     string         `json:"utm_medium,omitempty"`
	UTMCampaign   string         `json:"utm_campaign,omitempty"`
	UTMTerm       string         `json:"utm_term,omitempty"`
	UTMContent    string         `json:"utm_content,omitempty"`
	CapturedAt    time.Time      `json:"capturedAt"`
}

// Poster delivers one payload to the CRM.
type Poster interface {
	Post(ctx context.Context, payload any) (int, error)
}

// RelayOptions configures a Relay.
type RelayOptions struct {
	Workers   int
	QueueSize int
	Metrics   *metrics.FunnelMetrics
	Logger    *logging.Logger
}

type relayJob struct {
	lead Lead
	link trace.Link
}

// Relay forwards leads asynchronously. Each lead is posted at most once and
// every outcome, including drops, is written to the delivery log.
type Relay struct {
	poster  Poster
	log     DeliveryLog
	metrics *metrics.FunnelMetrics
	logger  *logging.Logger
	workers int
	now     func() time.Time

	queue chan relayJob
	wg    sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewRelay builds a relay. Call Start before leads are expected to flow.
func NewRelay(poster Poster, log DeliveryLog, opts RelayOptions) *Relay {
	if poster == nil {
		panic("crm: poster required")
	}
	if log == nil {
		log = NewMemoryLog(0)
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultRelayWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultRelayQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Relay{
		poster:  poster,
		log:     log,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		workers: opts.Workers,
		now:     time.Now,
		queue:   make(chan relayJob, opts.QueueSize),
	}
}

// Log exposes the delivery log for admin listing.
func (r *Relay) Log() DeliveryLog { return r.log }

// Start launches the worker goroutines. Deliveries run on a context detached
// from ctx's cancellation so Stop can drain the queue.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for job := range r.queue {
				r.deliver(base, job)
			}
		}()
	}
	r.logger.Info("crm relay started", "workers", r.workers, "queue_size", cap(r.queue))
}

// Dispatch enqueues lead without waiting for delivery. It never blocks and
// never fails; a full queue or stopped relay records a dropped delivery.
func (r *Relay) Dispatch(ctx context.Context, lead Lead) {
	job := relayJob{lead: lead, link: trace.LinkFromContext(ctx)}

	reason := ""
	r.mu.RLock()
	if r.closed {
		reason = "relay stopped"
	} else {
		select {
		case r.queue <- job:
		default:
			reason = "relay queue full"
		}
	}
	r.mu.RUnlock()

	if reason != "" {
		r.drop(context.WithoutCancel(ctx), lead, reason)
	}
}

// Stop closes the queue and waits for in-flight and queued deliveries.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started := r.started
	close(r.queue)
	r.mu.Unlock()

	if !started {
		for job := range r.queue {
			r.drop(ctx, job.lead, "relay stopped before start")
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) deliver(base context.Context, job relayJob) {
	ctx, span := crmTracer.Start(base, "crm.relay.deliver",
		trace.WithLinks(job.link),
		trace.WithAttributes(attribute.String("lead.id", job.lead.ID)),
	)
	defer span.End()

	started := r.now()
	status, err := r.poster.Post(ctx, job.lead)
	elapsed := r.now().Sub(started)

	d := Delivery{
		ID:         uuid.New(),
		LeadID:     job.lead.ID,
		Outcome:    OutcomeDelivered,
		StatusCode: status,
		LatencyMS:  elapsed.Milliseconds(),
		CreatedAt:  started.UTC(),
	}
	if err != nil {
		d.Outcome = OutcomeFailed
		d.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "crm delivery failed")
		r.logger.Warn("crm relay delivery failed",
			"lead_id", d.LeadID,
			"status", status,
			"error", err,
			"timeout", errors.Is(err, context.DeadlineExceeded),
		)
	} else {
		r.logger.Info("crm relay delivered", "lead_id", d.LeadID, "status", status, "latency_ms", d.LatencyMS)
	}
	r.metrics.ObserveRelay(string(d.Outcome), elapsed.Seconds())
	r.record(ctx, d)
}

func (r *Relay) drop(ctx context.Context, lead Lead, reason string) {
	d := Delivery{
		ID:        uuid.New(),
		LeadID:    lead.ID,
		Outcome:   OutcomeDropped,
		Error:     reason,
		CreatedAt: r.now().UTC(),
	}
	r.logger.Error("crm relay dropped lead", "lead_id", lead.ID, "reason", reason)
	r.metrics.ObserveRelay(string(OutcomeDropped), 0)
	r.record(ctx, d)
}

func (r *Relay) record(ctx context.Context, d Delivery) {
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := r.log.Record(ctx, d); err != nil {
		r.logger.Error("crm relay: failed to record delivery", "lead_id", d.LeadID, "outcome", d.Outcome, "error", err)
	}
}
