package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/retirement-leads-platform/internal/config"
	"github.com/wolfman30/retirement-leads-platform/internal/notify"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// BuildEmailSender picks SendGrid or SES from EMAIL_PROVIDER. Missing
// credentials fall back to the logging stub.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, loadAWS AWSLoader, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("SENDGRID_API_KEY missing; lead emails will only be logged")
	case "ses":
		if loadAWS == nil || cfg.SESFromEmail == "" {
			logger.Warn("SES not configured; lead emails will only be logged")
			break
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			logger.Error("failed to load aws config for ses", "error", err)
			break
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail:        cfg.SESFromEmail,
			FromName:         cfg.SendGridFromName,
			ConfigurationSet: cfg.SESConfigSet,
		}, logger), "ses"
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildNotifier wires team alerts for new leads. Returns nil when nobody is
// configured to receive them.
func BuildNotifier(email notify.EmailSender, sms notify.SMSSender, cfg *appconfig.Config, logger *logging.Logger) *notify.Service {
	svc := notify.NewService(email, sms, notify.ParseRecipients(cfg.LeadNotifyEmail, cfg.LeadNotifySMS), logger)
	if !svc.Enabled() {
		return nil
	}
	return svc
}
