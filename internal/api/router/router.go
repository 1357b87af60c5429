package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/retirement-leads-platform/internal/booking"
	"github.com/wolfman30/retirement-leads-platform/internal/crm"
	httpmiddleware "github.com/wolfman30/retirement-leads-platform/internal/http/middleware"
	"github.com/wolfman30/retirement-leads-platform/internal/leads"
	"github.com/wolfman30/retirement-leads-platform/internal/otp"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

const bookingConfirmPath = "/api/booking/confirm"

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	BookingHandler     *booking.Handler
	OTPHandler         *otp.Handler
	OTPRateLimiter     *httpmiddleware.RateLimiter
	LeadsHandler       *leads.Handler
	RelayAdmin         *crm.AdminHandler
	Health             *HealthHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		// The booking confirmation answers every origin with "*" on its own.
		r.Use(httpmiddleware.Except(httpmiddleware.CORS(cfg.CORSAllowedOrigins), bookingConfirmPath))
	}

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil)
	}
	r.Get("/health", health.Live)
	r.Get("/ready", health.Ready)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		// Called by the CRM workflow and by the browser poller, from any origin.
		if cfg.BookingHandler != nil {
			api.Route("/booking/confirm", func(b chi.Router) {
				b.Use(httpmiddleware.AllowAllOrigins(http.MethodGet, http.MethodPost, http.MethodOptions))
				b.Get("/", cfg.BookingHandler.Status)
				b.Post("/", cfg.BookingHandler.Confirm)
			})
		}

		if cfg.OTPHandler != nil {
			api.Route("/otp", func(o chi.Router) {
				limited := o.With()
				if cfg.OTPRateLimiter != nil {
					limited = o.With(httpmiddleware.RateLimit(cfg.OTPRateLimiter))
				}
				limited.Post("/send", cfg.OTPHandler.Send)
				limited.Post("/resend", cfg.OTPHandler.Resend)
				o.Post("/verify", cfg.OTPHandler.Verify)
				o.Post("/reset", cfg.OTPHandler.Reset)
				o.Get("/status", cfg.OTPHandler.Status)
			})
		}

		if cfg.LeadsHandler != nil {
			api.Post("/leads", cfg.LeadsHandler.Capture)
		}
	})

	// Operator routes (HMAC JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger))
			if cfg.LeadsHandler != nil {
				admin.Get("/leads", cfg.LeadsHandler.List)
				admin.Get("/leads/{leadID}", cfg.LeadsHandler.Get)
			}
			if cfg.RelayAdmin != nil {
				admin.Get("/relay/deliveries", cfg.RelayAdmin.ListDeliveries)
			}
		})
	}

	return r
}
