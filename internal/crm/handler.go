package crm

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// AdminHandler exposes the delivery log to operators.
type AdminHandler struct {
	log    DeliveryLog
	logger *logging.Logger
}

func NewAdminHandler(log DeliveryLog, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{log: log, logger: logger}
}

// ListDeliveries handles GET /admin/relay/deliveries?limit=N.
func (h *AdminHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	deliveries, err := h.log.List(r.Context(), limit)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.Error("failed to list relay deliveries", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed to list deliveries"})
		return
	}
	if deliveries == nil {
		deliveries = []Delivery{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}
