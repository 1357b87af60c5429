package leads

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

const maxLeadBody = 64 << 10

// Handler handles HTTP requests for leads
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Capture handles POST /api/leads.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxLeadBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode lead", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	lead, err := h.service.Capture(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidLead) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to capture lead", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save lead")
		return
	}

	writeJSON(w, http.StatusCreated, lead)
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// List handles GET /admin/leads.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Limit:  50,
		Offset: 0,
		Source: r.URL.Query().Get("source"),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 200 {
			filter.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	leads, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}

	writeJSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

// Get handles GET /admin/leads/{leadID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "leadID")
	lead, err := h.service.Get(r.Context(), id)
	switch {
	case errors.Is(err, ErrLeadNotFound):
		writeError(w, http.StatusNotFound, "lead not found")
	case err != nil:
		h.logger.Error("failed to load lead", "error", err, "lead_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load lead")
	default:
		writeJSON(w, http.StatusOK, lead)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
