package metrics

import "github.com/prometheus/client_golang/prometheus"

// FunnelMetrics exposes counters/histograms for verification, booking and relay flows.
type FunnelMetrics struct {
	otpTotal      *prometheus.CounterVec
	bookingTotal  *prometheus.CounterVec
	relayTotal    *prometheus.CounterVec
	relayLatency  prometheus.Histogram
	leadsCaptured *prometheus.CounterVec
}

func NewFunnelMetrics(reg prometheus.Registerer) *FunnelMetrics {
	m := &FunnelMetrics{
		otpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retirement",
			Subsystem: "otp",
			Name:      "events_total",
			Help:      "OTP send/verify/resend outcomes",
		}, []string{"action", "outcome"}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retirement",
			Subsystem: "booking",
			Name:      "webhook_total",
			Help:      "Inbound booking confirmation webhooks",
		}, []string{"status"}),
		relayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retirement",
			Subsystem: "crm_relay",
			Name:      "deliveries_total",
			Help:      "Lead deliveries to the CRM webhook",
		}, []string{"outcome"}),
		relayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "retirement",
			Subsystem: "crm_relay",
			Name:      "delivery_latency_seconds",
			Help:      "Latency of CRM webhook posts",
			Buckets:   prometheus.DefBuckets,
		}),
		leadsCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retirement",
			Subsystem: "leads",
			Name:      "captured_total",
			Help:      "Leads persisted by the capture endpoint",
		}, []string{"verified"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.otpTotal, m.bookingTotal, m.relayTotal, m.relayLatency, m.leadsCaptured)
	return m
}

func (m *FunnelMetrics) ObserveOTP(action, outcome string) {
	if m == nil {
		return
	}
	m.otpTotal.WithLabelValues(action, outcome).Inc()
}

func (m *FunnelMetrics) ObserveBookingWebhook(status string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(status).Inc()
}

func (m *FunnelMetrics) ObserveRelay(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.relayTotal.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		m.relayLatency.Observe(seconds)
	}
}

func (m *FunnelMetrics) ObserveLeadCaptured(verified bool) {
	if m == nil {
		return
	}
	label := "false"
	if verified {
		label = "true"
	}
	m.leadsCaptured.WithLabelValues(label).Inc()
}
