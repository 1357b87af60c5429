package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/retirement-leads-platform/internal/booking"
	"github.com/wolfman30/retirement-leads-platform/internal/bookingstore"
	"github.com/wolfman30/retirement-leads-platform/internal/crm"
	httpmiddleware "github.com/wolfman30/retirement-leads-platform/internal/http/middleware"
	"github.com/wolfman30/retirement-leads-platform/internal/leads"
	"github.com/wolfman30/retirement-leads-platform/internal/otp"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

const (
	testBookingSecret = "booking-secret"
	testAdminSecret   = "admin-secret"
)

type capturingSMS struct {
	mu   sync.Mutex
	last string
}

func (c *capturingSMS) SendSMS(_ context.Context, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = body
	return nil
}

var codeRe = regexp.MustCompile(`\d{6}`)

func (c *capturingSMS) code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return codeRe.FindString(c.last)
}

type testEnv struct {
	handler    http.Handler
	sms        *capturingSMS
	relay      *crm.Relay
	deliveries *crm.MemoryLog
	leads      *leads.InMemoryRepository
}

func newTestEnv(t *testing.T, crmStatus int) *testEnv {
	t.Helper()

	logger := logging.Nop()
	crmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(crmStatus)
	}))
	t.Cleanup(crmServer.Close)

	sms := &capturingSMS{}
	provider := otp.NewLocalProvider(otp.NewMemoryCodeStore(otp.SystemClock), sms, time.Minute, logger)
	manager := otp.NewManager(provider, otp.ManagerOptions{Logger: logger})

	deliveries := crm.NewMemoryLog(10)
	relay := crm.NewRelay(crm.NewWebhookClient(crmServer.URL, time.Second), deliveries, crm.RelayOptions{Logger: logger})
	relay.Start(context.Background())

	repo := leads.NewInMemoryRepository()
	leadService := leads.NewService(repo, leads.ServiceOptions{Relay: relay, Verifier: manager, Logger: logger})

	bookingService := booking.NewService(bookingstore.NewMemoryStore(), logger)

	handler := New(&Config{
		Logger:          logger,
		BookingHandler:  booking.NewHandler(bookingService, testBookingSecret, nil, logger),
		OTPHandler:      otp.NewHandler(manager, logger),
		OTPRateLimiter:  httpmiddleware.NewRateLimiter(100, 100),
		LeadsHandler:    leads.NewHandler(leadService, logger),
		RelayAdmin:      crm.NewAdminHandler(deliveries, logger),
		AdminAuthSecret: testAdminSecret,
	})
	return &testEnv{handler: handler, sms: sms, relay: relay, deliveries: deliveries, leads: repo}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rr := env.do(t, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if resp := decodeBody(t, rr); resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestRouterReadyReportsFailingCheck(t *testing.T) {
	r := New(&Config{
		Health: NewHealthHandler(map[string]Check{
			"redis":    func(context.Context) error { return nil },
			"postgres": func(context.Context) error { return errors.New("connection refused") },
		}),
	})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	checks := body["checks"].(map[string]any)
	if checks["redis"] != "ok" || checks["postgres"] != "connection refused" {
		t.Fatalf("unexpected checks %v", checks)
	}
}

// Verify a phone, capture the lead, then let the CRM confirm the booking and
// poll for it the way the thank-you page does.
func TestRouterEndToEndFunnel(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rr := env.do(t, http.MethodPost, "/api/otp/send", `{"phone":"+18587524266"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	code := env.sms.code()
	if code == "" {
		t.Fatal("expected a code to be texted")
	}

	rr = env.do(t, http.MethodPost, "/api/otp/verify", `{"phone":"+18587524266","code":"`+code+`"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeBody(t, rr); resp["status"] != "verified" || resp["verified"] != true {
		t.Fatalf("unexpected verify response %v", resp)
	}

	rr = env.do(t, http.MethodPost, "/api/leads", `{"name":"Jane Doe","phone":"+18587524266","email":"jane@example.com","leadScore":80}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("capture: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if lead := decodeBody(t, rr); lead["phoneVerified"] != true {
		t.Fatalf("expected verified lead, got %v", lead)
	}

	rr = env.do(t, http.MethodPost, "/api/booking/confirm", `{"phone":"+18587524266","name":"Jane Doe","source":"ghl"}`,
		map[string]string{"X-Booking-Secret": testBookingSecret})
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/booking/confirm?phone=%2B18587524266", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("poll: expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard CORS on booking poll, got %q", got)
	}
	status := decodeBody(t, rr)
	if status["confirmed"] != true || status["name"] != "Jane Doe" {
		t.Fatalf("unexpected booking status %v", status)
	}

	if err := env.relay.Stop(context.Background()); err != nil {
		t.Fatalf("stop relay: %v", err)
	}
	entries, _ := env.deliveries.List(context.Background(), 0)
	if len(entries) != 1 || entries[0].Outcome != crm.OutcomeDelivered {
		t.Fatalf("expected one delivered relay entry, got %+v", entries)
	}
}

func TestRouterLeadCaptureSurvivesCRMFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusInternalServerError)

	rr := env.do(t, http.MethodPost, "/api/leads", `{"email":"router@example.com"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}

	if err := env.relay.Stop(context.Background()); err != nil {
		t.Fatalf("stop relay: %v", err)
	}
	entries, _ := env.deliveries.List(context.Background(), 0)
	if len(entries) != 1 || entries[0].Outcome != crm.OutcomeFailed || entries[0].StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected failed delivery to be logged, got %+v", entries)
	}
}

func TestRouterBookingRejectsMissingSecret(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rr := env.do(t, http.MethodPost, "/api/booking/confirm", `{"email":"jane@example.com"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/booking/confirm?email=jane@example.com", "", nil)
	if resp := decodeBody(t, rr); resp["confirmed"] != false {
		t.Fatalf("expected no booking recorded, got %v", resp)
	}
}

func TestRouterBookingPreflight(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rr := env.do(t, http.MethodOptions, "/api/booking/confirm", "", map[string]string{
		"Origin":                        "https://crm.example.com",
		"Access-Control-Request-Method": "POST",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard origin, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRouterBookingIgnoresOriginAllowlist(t *testing.T) {
	logger := logging.Nop()
	bookingService := booking.NewService(bookingstore.NewMemoryStore(), logger)
	leadService := leads.NewService(leads.NewInMemoryRepository(), leads.ServiceOptions{Logger: logger})
	r := New(&Config{
		BookingHandler:     booking.NewHandler(bookingService, "", nil, logger),
		LeadsHandler:       leads.NewHandler(leadService, logger),
		CORSAllowedOrigins: []string{"https://site.example"},
	})
	preflight := func(path, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := preflight("/api/booking/confirm", "https://crm.example.com")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin on booking preflight, got %q", got)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/booking/confirm", strings.NewReader(`{"email":"jane@example.com"}`))
	req.Header.Set("Origin", "https://crm.example.com")
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin on booking post, got %q", got)
	}

	// Other routes keep the allowlist.
	if got := preflight("/api/leads", "https://crm.example.com").Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no origin for unlisted caller, got %q", got)
	}
	if got := preflight("/api/leads", "https://site.example").Header().Get("Access-Control-Allow-Origin"); got != "https://site.example" {
		t.Fatalf("expected allowlisted origin echoed, got %q", got)
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rr := env.do(t, http.MethodGet, "/admin/leads", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testAdminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + signed}

	rr = env.do(t, http.MethodGet, "/admin/leads", "", auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/admin/relay/deliveries", "", auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for deliveries, got %d", rr.Code)
	}
}

func TestRouterAdminDisabledWithoutSecret(t *testing.T) {
	r := New(&Config{LeadsHandler: leads.NewHandler(leads.NewService(leads.NewInMemoryRepository(), leads.ServiceOptions{}), nil)})
	req := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected admin routes to be absent, got %d", rr.Code)
	}
}

func TestRouterOTPSendIsRateLimited(t *testing.T) {
	sms := &capturingSMS{}
	provider := otp.NewLocalProvider(otp.NewMemoryCodeStore(otp.SystemClock), sms, time.Minute, logging.Nop())
	manager := otp.NewManager(provider, otp.ManagerOptions{Logger: logging.Nop()})
	r := New(&Config{
		OTPHandler:     otp.NewHandler(manager, logging.Nop()),
		OTPRateLimiter: httpmiddleware.NewRateLimiter(0.001, 1),
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/otp/send", strings.NewReader(`{"phone":"+18587524266"}`))
		req.RemoteAddr = "203.0.113.9:5000"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("first send: expected 200, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second send: expected 429, got %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/otp/status?phone=%2B18587524266", nil)
	req.RemoteAddr = "203.0.113.9:5000"
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status should not be rate limited, got %d", rr.Code)
	}
}
