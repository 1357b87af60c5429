package messaging

import (
	"fmt"
	"strings"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

const (
	// SMSProviderAuto tries Telnyx first, then Twilio.
	SMSProviderAuto = "auto"
	// SMSProviderTelnyx forces the Telnyx sender when credentials exist.
	SMSProviderTelnyx = "telnyx"
	// SMSProviderTwilio forces the Twilio sender when credentials exist.
	SMSProviderTwilio = "twilio"
)

// ProviderSelectionConfig captures the credentials required to build outbound senders.
type ProviderSelectionConfig struct {
	Preference       string
	TelnyxAPIKey     string
	TelnyxProfileID  string
	TelnyxFromNumber string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// BuildSMSSender instantiates a Sender based on the preferred provider.
// It returns the sender, the provider that was selected, and a reason when no provider could be initialized.
func BuildSMSSender(cfg ProviderSelectionConfig, logger *logging.Logger) (Sender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = SMSProviderAuto
	}

	missing := map[string]string{}
	var telnyxSender, twilioSender Sender

	if cfg.TelnyxAPIKey != "" && cfg.TelnyxFromNumber != "" {
		telnyxSender = NewTelnyxSender(cfg.TelnyxAPIKey, cfg.TelnyxProfileID, cfg.TelnyxFromNumber, logger)
	} else {
		var reasons []string
		if cfg.TelnyxAPIKey == "" {
			reasons = append(reasons, "TELNYX_API_KEY missing")
		}
		if cfg.TelnyxFromNumber == "" {
			reasons = append(reasons, "TELNYX_FROM_NUMBER missing")
		}
		missing[SMSProviderTelnyx] = strings.Join(reasons, ", ")
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		twilioSender = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		var reasons []string
		if cfg.TwilioAccountSID == "" {
			reasons = append(reasons, "TWILIO_ACCOUNT_SID missing")
		}
		if cfg.TwilioAuthToken == "" {
			reasons = append(reasons, "TWILIO_AUTH_TOKEN missing")
		}
		if cfg.TwilioFromNumber == "" {
			reasons = append(reasons, "TWILIO_FROM_NUMBER missing")
		}
		missing[SMSProviderTwilio] = strings.Join(reasons, ", ")
	}

	switch preference {
	case SMSProviderTelnyx, SMSProviderTwilio:
		if preference == SMSProviderTelnyx && telnyxSender != nil {
			return telnyxSender, SMSProviderTelnyx, ""
		}
		if preference == SMSProviderTwilio && twilioSender != nil {
			return twilioSender, SMSProviderTwilio, ""
		}
		return nil, "", missing[preference]
	case SMSProviderAuto:
	default:
		return nil, "", fmt.Sprintf("unknown SMS provider %q", preference)
	}

	if telnyxSender != nil && twilioSender != nil {
		return NewFailoverSender(telnyxSender, SMSProviderTelnyx, twilioSender, SMSProviderTwilio, logger), SMSProviderTelnyx + "+" + SMSProviderTwilio, ""
	}
	if telnyxSender != nil {
		return telnyxSender, SMSProviderTelnyx, ""
	}
	if twilioSender != nil {
		return twilioSender, SMSProviderTwilio, ""
	}
	return nil, "", fmt.Sprintf("%s: %s; %s: %s",
		SMSProviderTelnyx, missing[SMSProviderTelnyx],
		SMSProviderTwilio, missing[SMSProviderTwilio])
}
