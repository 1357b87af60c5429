package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/retirement-leads-platform/cmd/mainconfig"
	"github.com/wolfman30/retirement-leads-platform/internal/api/router"
	"github.com/wolfman30/retirement-leads-platform/internal/app/bootstrap"
	"github.com/wolfman30/retirement-leads-platform/internal/booking"
	appconfig "github.com/wolfman30/retirement-leads-platform/internal/config"
	"github.com/wolfman30/retirement-leads-platform/internal/crm"
	httpmiddleware "github.com/wolfman30/retirement-leads-platform/internal/http/middleware"
	"github.com/wolfman30/retirement-leads-platform/internal/leads"
	"github.com/wolfman30/retirement-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/retirement-leads-platform/internal/otp"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

func main() {
	// Local runs read a .env file; deployed environments inject variables.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting retirement-leads API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, funnelMetrics := setupMetrics()
	loadAWS := awsLoader(cfg)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	pool := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}

	// Booking confirmations
	bookingStore, err := bootstrap.BuildBookingStore(ctx, cfg, redisClient, loadAWS, logger)
	if err != nil {
		return err
	}
	bookingHandler := booking.NewHandler(booking.NewService(bookingStore, logger), cfg.BookingWebhookSecret, funnelMetrics, logger)
	if cfg.BookingWebhookSecret == "" {
		logger.Warn("BOOKING_WEBHOOK_SECRET not set; booking webhook accepts unauthenticated posts")
	}

	// OTP verification
	smsSender, smsProvider, smsReason := bootstrap.BuildSMSSender(cfg, logger)
	if smsReason != "" {
		logger.Warn("sms provider unavailable; messages will be logged only", "reason", smsReason)
	}
	otpProvider, err := bootstrap.BuildOTPProvider(cfg, bootstrap.BuildCodeStore(redisClient), smsSender, logger)
	if err != nil {
		return err
	}
	otpManager := bootstrap.BuildOTPManager(cfg, otpProvider, funnelMetrics, logger)
	otpLimiter := httpmiddleware.NewRateLimiter(cfg.OTPRateLimit, cfg.OTPRateBurst)
	logger.Info("otp configured", "provider", cfg.OTPProvider, "sms_provider", smsProvider)

	// Lead capture, CRM relay and team notifications
	relay := bootstrap.BuildRelay(cfg, pool, funnelMetrics, logger)
	relay.Start(ctx)

	emailSender, emailProvider := bootstrap.BuildEmailSender(ctx, cfg, loadAWS, logger)
	notifier := bootstrap.BuildNotifier(emailSender, smsSender, cfg, logger)
	serviceOpts := leads.ServiceOptions{
		Relay:    relay,
		Verifier: otpManager,
		Metrics:  funnelMetrics,
		Logger:   logger,
	}
	if notifier != nil {
		serviceOpts.Notifier = notifier
		logger.Info("lead notifications enabled", "email_provider", emailProvider)
	}
	leadService := leads.NewService(buildLeadRepository(pool), serviceOpts)

	go otpManager.Run(ctx, time.Minute)
	go otpLimiter.Run(ctx, 5*time.Minute)

	r := router.New(&router.Config{
		Logger:             logger,
		BookingHandler:     bookingHandler,
		OTPHandler:         otp.NewHandler(otpManager, logger),
		OTPRateLimiter:     otpLimiter,
		LeadsHandler:       leads.NewHandler(leadService, logger),
		RelayAdmin:         crm.NewAdminHandler(relay.Log(), logger),
		Health:             router.NewHealthHandler(healthChecks(redisClient, pool)),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := newServer(cfg.Port, r)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	// Requests are drained; flush queued CRM deliveries and pending alerts.
	if err := relay.Stop(shutdownCtx); err != nil {
		logger.Warn("crm relay did not drain before shutdown", "error", err)
	}
	leadService.Wait()
	cancel()

	logger.Info("server stopped")
	return nil
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// setupMetrics registers funnel metrics on a dedicated registry alongside the
// Go runtime and process collectors.
func setupMetrics() (http.Handler, *metrics.FunnelMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewFunnelMetrics(reg)
}

// awsLoader loads the AWS config at most once, and only if a component needs it.
func awsLoader(cfg *appconfig.Config) bootstrap.AWSLoader {
	var (
		once   sync.Once
		awsCfg aws.Config
		err    error
	)
	return func(ctx context.Context) (aws.Config, error) {
		once.Do(func() {
			awsCfg, err = mainconfig.LoadAWSConfig(ctx, cfg)
		})
		return awsCfg, err
	}
}

func buildLeadRepository(pool *pgxpool.Pool) leads.Repository {
	if pool == nil {
		return leads.NewInMemoryRepository()
	}
	return leads.NewPostgresRepository(pool)
}

func healthChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]router.Check {
	checks := map[string]router.Check{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	return checks
}
