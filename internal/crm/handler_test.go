package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

func TestAdminHandler_ListDeliveries(t *testing.T) {
	log := NewMemoryLog(10)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, log.Record(context.Background(), Delivery{LeadID: id, Outcome: OutcomeDelivered}))
	}
	h := NewAdminHandler(log, logging.Nop())

	w := httptest.NewRecorder()
	h.ListDeliveries(w, httptest.NewRequest(http.MethodGet, "/admin/relay/deliveries?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Deliveries []Delivery `json:"deliveries"`
		Count      int        `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "c", body.Deliveries[0].LeadID)
}

func TestAdminHandler_ListDeliveriesError(t *testing.T) {
	h := NewAdminHandler(failingLog{}, logging.Nop())
	w := httptest.NewRecorder()
	h.ListDeliveries(w, httptest.NewRequest(http.MethodGet, "/admin/relay/deliveries", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
