package bootstrap

import (
	appconfig "github.com/wolfman30/retirement-leads-platform/internal/config"
	"github.com/wolfman30/retirement-leads-platform/internal/messaging"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// BuildSMSSender creates the outbound SMS sender. Without credentials it
// falls back to a sender that only logs, and reports why.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) (messaging.Sender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return messaging.NewLogSender(logger), "log", "missing config"
	}

	selection := messaging.ProviderSelectionConfig{
		Preference:       cfg.SMSProvider,
		TelnyxAPIKey:     cfg.TelnyxAPIKey,
		TelnyxProfileID:  cfg.TelnyxMessagingProfileID,
		TelnyxFromNumber: cfg.TelnyxFromNumber,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
	}
	sender, provider, reason := messaging.BuildSMSSender(selection, logger)
	if sender == nil {
		return messaging.NewLogSender(logger), "log", reason
	}
	return sender, provider, ""
}
