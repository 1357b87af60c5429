package otp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/retirement-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

func newTestManager(p Provider, clock Clock, reg *prometheus.Registry) *Manager {
	var m *metrics.FunnelMetrics
	if reg != nil {
		m = metrics.NewFunnelMetrics(reg)
	}
	return NewManager(p, ManagerOptions{
		Session:    Options{MaxAttempts: 3, ResendCooldown: time.Minute, Clock: clock},
		SessionTTL: 30 * time.Minute,
		Metrics:    m,
		Logger:     logging.Nop(),
	})
}

func TestManagerVerifyMarksPhone(t *testing.T) {
	p := &fakeProvider{code: "482913"}
	var verified []string
	mgr := NewManager(p, ManagerOptions{
		Session:    Options{Clock: newFakeClock()},
		Logger:     logging.Nop(),
		OnVerified: func(phone string) { verified = append(verified, phone) },
	})
	ctx := context.Background()

	snap, err := mgr.Send(ctx, "(858) 752-4266")
	require.NoError(t, err)
	assert.Equal(t, "+18587524266", snap.Phone)
	assert.False(t, mgr.IsVerified("+18587524266"))

	snap, err = mgr.Verify(ctx, "858-752-4266", "482913")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, snap.Status)
	assert.True(t, mgr.IsVerified("+1 858 752 4266"))
	assert.Equal(t, []string{"+18587524266"}, verified)
}

func TestManagerSendTwiceHonoursCooldown(t *testing.T) {
	p := &fakeProvider{code: "482913"}
	clock := newFakeClock()
	mgr := newTestManager(p, clock, nil)
	ctx := context.Background()

	_, err := mgr.Send(ctx, "+18587524266")
	require.NoError(t, err)
	snap, err := mgr.Send(ctx, "+18587524266")
	assert.ErrorIs(t, err, ErrResendCooldown)
	assert.Equal(t, 60, snap.ResendIn)

	clock.Advance(time.Minute)
	_, err = mgr.Send(ctx, "+18587524266")
	require.NoError(t, err)
	sends, _ := p.counts()
	assert.Equal(t, 2, sends)
}

func TestManagerUnknownSession(t *testing.T) {
	mgr := newTestManager(&fakeProvider{}, newFakeClock(), nil)
	_, err := mgr.Verify(context.Background(), "+18587524266", "123456")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	snap, err := mgr.Status("+18587524266")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Equal(t, 3, snap.AttemptsRemaining)

	_, err = mgr.Status("12")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestManagerResetAndSweep(t *testing.T) {
	p := &fakeProvider{code: "482913"}
	clock := newFakeClock()
	mgr := newTestManager(p, clock, nil)
	ctx := context.Background()

	_, err := mgr.Send(ctx, "+18587524266")
	require.NoError(t, err)
	_, err = mgr.Verify(ctx, "+18587524266", "482913")
	require.NoError(t, err)

	snap, err := mgr.Reset("+18587524266")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, snap.Status)
	assert.False(t, mgr.IsVerified("+18587524266"))
	assert.Equal(t, 0, mgr.Len())

	_, err = mgr.Send(ctx, "+16195551234")
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	assert.Equal(t, 0, mgr.Sweep())
	clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, mgr.Sweep())
	assert.Equal(t, 0, mgr.Len())
}

func TestManagerRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := &fakeProvider{code: "482913"}
	mgr := newTestManager(p, newFakeClock(), reg)
	ctx := context.Background()

	_, _ = mgr.Send(ctx, "555-1234")
	_, _ = mgr.Send(ctx, "+18587524266")
	_, _ = mgr.Verify(ctx, "+18587524266", "000000")
	_, _ = mgr.Verify(ctx, "+18587524266", "482913")

	count, err := testutil.GatherAndCount(reg, "retirement_otp_events_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestHandlerFlow(t *testing.T) {
	p := &fakeProvider{code: "482913"}
	h := NewHandler(newTestManager(p, newFakeClock(), nil), logging.Nop())

	post := func(fn http.HandlerFunc, body string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		fn(rec, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec, out
	}

	rec, body := post(h.Send, `{"phone":"555-1234"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["error"])

	rec, body = post(h.Send, `{"phone":"+18587524266"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "awaiting_code", body["status"])
	assert.Equal(t, float64(60), body["resendIn"])
	assert.NotContains(t, body, "code")

	rec, body = post(h.Verify, `{"phone":"+18587524266","code":"111111"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, float64(2), body["attemptsRemaining"])

	rec, _ = post(h.Resend, `{"phone":"+18587524266"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec, body = post(h.Verify, `{"phone":"+18587524266","code":"482913"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["verified"])

	req := httptest.NewRequest(http.MethodGet, "/api/otp/status?phone=%2B18587524266", nil)
	statusRec := httptest.NewRecorder()
	h.Status(statusRec, req)
	assert.Equal(t, http.StatusOK, statusRec.Code)
	assert.Contains(t, statusRec.Body.String(), `"verified"`)

	rec, body = post(h.Reset, `{"phone":"+18587524266"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", body["status"])

	rec, _ = post(h.Verify, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
