package bootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/retirement-leads-platform/internal/config"
	"github.com/wolfman30/retirement-leads-platform/internal/crm"
	"github.com/wolfman30/retirement-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// BuildRelay wires the CRM webhook relay. Deliveries are logged to Postgres
// when a pool is available.
func BuildRelay(cfg *appconfig.Config, pool *pgxpool.Pool, m *metrics.FunnelMetrics, logger *logging.Logger) *crm.Relay {
	var deliveries crm.DeliveryLog
	if pool != nil {
		deliveries = crm.NewPostgresLog(pool)
	} else {
		deliveries = crm.NewMemoryLog(0)
	}
	return crm.NewRelay(crm.NewWebhookClient(cfg.CRMWebhookURL, cfg.CRMWebhookTimeout), deliveries, crm.RelayOptions{
		Workers:   cfg.CRMRelayWorkers,
		QueueSize: cfg.CRMRelayQueueSize,
		Metrics:   m,
		Logger:    logger,
	})
}
