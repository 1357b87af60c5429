package bootstrap

import (
	"fmt"

	appconfig "github.com/wolfman30/retirement-leads-platform/internal/config"
	"github.com/wolfman30/retirement-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/retirement-leads-platform/internal/otp"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

const (
	OTPProviderLocal        = "local"
	OTPProviderTwilioVerify = "twilio_verify"
)

// BuildOTPProvider selects how codes are generated and delivered.
func BuildOTPProvider(cfg *appconfig.Config, codes otp.CodeStore, sms otp.SMSSender, logger *logging.Logger) (otp.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	switch cfg.OTPProvider {
	case "", OTPProviderLocal:
		if codes == nil || sms == nil {
			return nil, fmt.Errorf("bootstrap: local otp provider needs a code store and sms sender")
		}
		return otp.NewLocalProvider(codes, sms, cfg.OTPCodeTTL, logger), nil
	case OTPProviderTwilioVerify:
		provider, err := otp.NewTwilioVerifyProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioVerifyServiceSID, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown OTP_PROVIDER %q", cfg.OTPProvider)
	}
}

// BuildOTPManager wires the per-phone session registry.
func BuildOTPManager(cfg *appconfig.Config, provider otp.Provider, m *metrics.FunnelMetrics, logger *logging.Logger) *otp.Manager {
	return otp.NewManager(provider, otp.ManagerOptions{
		Session: otp.Options{
			MaxAttempts:    cfg.OTPMaxAttempts,
			ResendCooldown: cfg.OTPResendCooldown,
		},
		SessionTTL: cfg.OTPSessionTTL,
		Metrics:    m,
		Logger:     logger,
	})
}
