// Package booking receives "appointment created" webhooks from the CRM and
// answers the browser's polling for them.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/retirement-leads-platform/internal/bookingstore"
	"github.com/wolfman30/retirement-leads-platform/internal/contact"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

var bookingTracer = otel.Tracer("retirement.internal.booking")

// ErrMissingKey is returned when an event carries neither an email nor a phone.
var ErrMissingKey = errors.New("booking: email or phone required")

// Event is a normalized booking notification.
type Event struct {
	Email         string
	Phone         string
	Name          string
	Source        string
	AppointmentID any
	BookingTimes  any
	Raw           map[string]any
}

// Confirmation is what the poller sees for a contact.
type Confirmation struct {
	Confirmed bool
	Record    *bookingstore.Record
}

// Service records booking events and looks them up by contact.
type Service struct {
	store  bookingstore.Store
	logger *logging.Logger
	now    func() time.Time
}

// NewService constructs a booking service over store.
func NewService(store bookingstore.Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("booking: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Confirm records ev under its email key and, when present, its phone key, so
// the browser finds it whichever identifier it polls with. It returns the
// primary key (email preferred).
func (s *Service) Confirm(ctx context.Context, ev Event) (string, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.confirm")
	defer span.End()

	emailKey := contact.NormalizeEmail(ev.Email)
	phoneKey := contact.NormalizePhone(ev.Phone)
	keys := make([]string, 0, 2)
	if emailKey != "" {
		keys = append(keys, emailKey)
	}
	if phoneKey != "" {
		keys = append(keys, phoneKey)
	}
	if len(keys) == 0 {
		span.SetStatus(codes.Error, ErrMissingKey.Error())
		return "", ErrMissingKey
	}
	span.SetAttributes(attribute.String("retirement.booking.key", keys[0]))

	payload := map[string]any{"raw": ev.Raw}
	if ev.AppointmentID != nil {
		payload["appointmentId"] = ev.AppointmentID
	}
	if ev.BookingTimes != nil {
		payload["bookingTimes"] = ev.BookingTimes
	}
	rec := bookingstore.Record{
		Email:      emailKey,
		Phone:      phoneKey,
		Name:       ev.Name,
		Source:     ev.Source,
		Payload:    payload,
		RecordedAt: s.now().UTC(),
	}
	for _, key := range keys {
		rec.Key = key
		if err := s.store.RecordBooking(ctx, key, rec); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record booking")
			return "", fmt.Errorf("booking: record %s: %w", key, err)
		}
	}

	s.logger.Info("booking confirmed", "key", keys[0], "source", ev.Source)
	return keys[0], nil
}

// Lookup returns the booking for a contact, trying the email key before the
// phone key. An empty email and phone yields ErrMissingKey.
func (s *Service) Lookup(ctx context.Context, email, phone string) (Confirmation, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.lookup")
	defer span.End()

	keys := make([]string, 0, 2)
	if key := contact.NormalizeEmail(email); key != "" {
		keys = append(keys, key)
	}
	if key := contact.NormalizePhone(phone); key != "" {
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return Confirmation{}, ErrMissingKey
	}

	for _, key := range keys {
		rec, ok, err := s.store.GetBooking(ctx, key)
		if err != nil {
			span.RecordError(err)
			return Confirmation{}, fmt.Errorf("booking: lookup %s: %w", key, err)
		}
		if ok {
			return Confirmation{Confirmed: true, Record: rec}, nil
		}
	}
	return Confirmation{}, nil
}
