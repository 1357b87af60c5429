package otp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// Handler exposes a Manager over HTTP for the funnel's verification step.
type Handler struct {
	manager *Manager
	logger  *logging.Logger
}

// NewHandler creates an OTP handler.
func NewHandler(manager *Manager, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type otpResponse struct {
	Phone             string `json:"phone,omitempty"`
	Status            Status `json:"status"`
	Verified          bool   `json:"verified"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
	ResendIn          int    `json:"resendIn"`
	Error             string `json:"error,omitempty"`
}

// Send handles POST /api/otp/send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	snap, err := h.manager.Send(r.Context(), req.Phone)
	h.respond(w, snap, err)
}

// Verify handles POST /api/otp/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	snap, err := h.manager.Verify(r.Context(), req.Phone, req.Code)
	h.respond(w, snap, err)
}

// Resend handles POST /api/otp/resend.
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	snap, err := h.manager.Resend(r.Context(), req.Phone)
	h.respond(w, snap, err)
}

// Reset handles POST /api/otp/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	snap, err := h.manager.Reset(req.Phone)
	h.respond(w, snap, err)
}

// Status handles GET /api/otp/status?phone=.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Status(r.URL.Query().Get("phone"))
	h.respond(w, snap, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (otpRequest, bool) {
	var req otpRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, otpResponse{Status: StatusIdle, Error: "Invalid request body"})
		return req, false
	}
	return req, true
}

func (h *Handler) respond(w http.ResponseWriter, snap Snapshot, err error) {
	resp := otpResponse{
		Phone:             snap.Phone,
		Status:            snap.Status,
		Verified:          snap.Status == StatusVerified,
		AttemptsRemaining: snap.AttemptsRemaining,
		ResendIn:          snap.ResendIn,
	}
	if resp.Status == "" {
		resp.Status = StatusIdle
	}
	if err == nil || errors.Is(err, ErrAlreadyVerified) {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	status, msg := describe(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("otp request failed", "error", err)
	}
	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		resp.ResendIn = ceilSeconds(cooldown.Remaining)
		w.Header().Set("Retry-After", strconv.Itoa(resp.ResendIn))
	}
	resp.Error = msg
	writeJSON(w, status, resp)
}

// describe maps an error to an HTTP status and a message fit for the user.
func describe(err error) (int, string) {
	var attempt *AttemptError
	var cooldown *CooldownError
	switch {
	case errors.Is(err, ErrInvalidPhone):
		return http.StatusBadRequest, "Please enter a valid 10-digit US phone number."
	case errors.Is(err, ErrInvalidCode):
		return http.StatusBadRequest, "Please enter the 6-digit code we sent you."
	case errors.As(err, &attempt) && attempt.Remaining > 0:
		return http.StatusUnprocessableEntity, fmt.Sprintf("That code didn't match. %d attempt(s) remaining.", attempt.Remaining)
	case errors.Is(err, ErrMaxAttempts):
		return http.StatusTooManyRequests, "Too many incorrect attempts. Request a new code."
	case errors.As(err, &cooldown):
		return http.StatusTooManyRequests, fmt.Sprintf("Please wait %d seconds before requesting a new code.", ceilSeconds(cooldown.Remaining))
	case errors.Is(err, ErrBusy):
		return http.StatusConflict, "Your previous request is still being processed."
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNoActiveCode):
		return http.StatusConflict, "Request a verification code first."
	default:
		return http.StatusBadGateway, "We couldn't reach our verification service. Please try again."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
