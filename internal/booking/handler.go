package booking

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/retirement-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

const (
	secretHeader    = "X-Booking-Secret"
	maxWebhookBytes = 1 << 20
)

// Handler serves /api/booking/confirm for the CRM webhook and the browser poller.
type Handler struct {
	service *Service
	secret  string
	metrics *metrics.FunnelMetrics
	logger  *logging.Logger
}

// NewHandler creates a booking handler. An empty secret disables the header check.
func NewHandler(service *Service, secret string, m *metrics.FunnelMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, secret: secret, metrics: m, logger: logger}
}

type confirmResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
}

type lookupResponse struct {
	Confirmed bool           `json:"confirmed"`
	Name      string         `json:"name,omitempty"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Source    string         `json:"source,omitempty"`
	Payload   map[string]any `json:"payload"`
}

// Confirm handles POST /api/booking/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.Warn("booking webhook rejected", "reason", "bad secret", "remote_ip", r.RemoteAddr)
			h.metrics.ObserveBookingWebhook("unauthorized")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBytes)).Decode(&body); err != nil {
		h.logger.Warn("booking webhook body invalid", "error", err)
		h.metrics.ObserveBookingWebhook("invalid")
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	key, err := h.service.Confirm(r.Context(), eventFromBody(body))
	switch {
	case errors.Is(err, ErrMissingKey):
		h.metrics.ObserveBookingWebhook("invalid")
		writeError(w, http.StatusBadRequest, "Missing email or phone")
		return
	case err != nil:
		h.logger.Error("booking webhook failed", "error", err)
		h.metrics.ObserveBookingWebhook("error")
		writeError(w, http.StatusInternalServerError, "Failed to record booking")
		return
	}

	h.metrics.ObserveBookingWebhook("recorded")
	writeJSON(w, http.StatusOK, confirmResponse{Success: true, Key: key})
}

// Status handles GET /api/booking/confirm?email=|phone=.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := q.Get("email")
	phone := q.Get("phone")
	// An unencoded "+" in the query string decodes to a space.
	if strings.HasPrefix(phone, " ") {
		phone = "+" + strings.TrimSpace(phone)
	}

	conf, err := h.service.Lookup(r.Context(), email, phone)
	switch {
	case errors.Is(err, ErrMissingKey):
		writeError(w, http.StatusBadRequest, "Missing email or phone")
		return
	case err != nil:
		h.logger.Error("booking lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to look up booking")
		return
	}

	resp := lookupResponse{Confirmed: conf.Confirmed, Payload: map[string]any{}}
	if rec := conf.Record; rec != nil {
		resp.Name = rec.Name
		resp.Email = rec.Email
		resp.Phone = rec.Phone
		resp.Source = rec.Source
		if rec.Payload != nil {
			resp.Payload = rec.Payload
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// eventFromBody accepts the field spellings different CRM workflows send.
func eventFromBody(body map[string]any) Event {
	nested, _ := body["contact"].(map[string]any)
	ev := Event{
		Email:         firstString(body, nested, "email"),
		Phone:         firstString(body, nested, "phone"),
		Source:        firstString(body, nil, "source"),
		AppointmentID: firstValue(body, "appointmentId", "appointment_id"),
		BookingTimes:  firstValue(body, "bookingTimes", "booking_times"),
		Raw:           body,
	}

	ev.Name = firstString(body, nested, "name", "full_name")
	if ev.Name == "" {
		first := firstString(body, nested, "first_name")
		last := firstString(body, nested, "last_name")
		ev.Name = strings.TrimSpace(first + " " + last)
	}
	return ev
}

func firstString(body, nested map[string]any, keys ...string) string {
	for _, m := range []map[string]any{body, nested} {
		for _, key := range keys {
			if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func firstValue(body map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := body[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
