package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry       *prometheus.Registry
	checkoutsTotal *prometheus.CounterVec
	paymentsTotal  *prometheus.CounterVec
	releasesTotal  *prometheus.CounterVec
}

func newMetricsRegistry() *metricsRegistry {
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowgate_checkouts_total",
		Help: "Total number of checkout requests by outcome",
	}, []string{"status"})

	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowgate_acquirer_payments_total",
		Help: "Approved payments per acquirer",
	}, []string{"acquirer"})

	releases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowgate_releases_total",
		Help: "Escrow release operations by kind and outcome",
	}, []string{"kind", "status"})

	r := prometheus.NewRegistry()
	r.MustRegister(checkouts, payments, releases)

	return &metricsRegistry{
		registry:       r,
		checkoutsTotal: checkouts,
		paymentsTotal:  payments,
		releasesTotal:  releases,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incCheckout(status string) {
	m.checkoutsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incPayment(acquirer string) {
	m.paymentsTotal.WithLabelValues(acquirer).Inc()
}

func (m *metricsRegistry) incRelease(kind, status string) {
	m.releasesTotal.WithLabelValues(kind, status).Inc()
}
