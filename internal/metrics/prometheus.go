package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	settlements *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
}

func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	settlements := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "purchases_total",
			Help:      "Ledger rows reaching a terminal state",
		},
		[]string{"rail", "status"},
	)

	webhooks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "webhook_events_total",
			Help:      "Inbound provider events by outcome",
		},
		[]string{"provider", "outcome"},
	)

	reg.MustRegister(settlements, webhooks)

	return &PrometheusRecorder{
		settlements: settlements,
		webhooks:    webhooks,
	}
}

func (p *PrometheusRecorder) IncSettlement(rail, status string) {
	p.settlements.WithLabelValues(rail, status).Inc()
}

func (p *PrometheusRecorder) IncWebhookEvent(provider, outcome string) {
	p.webhooks.WithLabelValues(provider, outcome).Inc()
}
