package metrics

import (
	"net/http"

	"github.com/layer-3/gamebridge/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gamebridge"

// Prometheus records bridge outcomes on a private registry
type Prometheus struct {
	registry *prometheus.Registry

	authVerifications  *prometheus.CounterVec
	credentialRefresh  *prometheus.CounterVec
	conversionOutcomes *prometheus.CounterVec
}

// NewPrometheus creates and registers the bridge collectors
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		authVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "verifications_total",
				Help:      "Wallet signature verifications by result.",
			},
			[]string{"result"},
		),
		credentialRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "credential_refresh_total",
				Help:      "Upstream credential exchanges by result.",
			},
			[]string{"result"},
		),
		conversionOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "conversions_total",
				Help:      "Finalize and reconcile outcomes.",
			},
			[]string{"outcome"},
		),
	}

	p.registry.MustRegister(
		p.authVerifications,
		p.credentialRefresh,
		p.conversionOutcomes,
		prometheus.NewGoCollector(),
	)

	return p
}

var _ ports.Metrics = (*Prometheus)(nil)

func (p *Prometheus) AuthVerification(result string) {
	p.authVerifications.WithLabelValues(result).Inc()
}

func (p *Prometheus) CredentialRefresh(result string) {
	p.credentialRefresh.WithLabelValues(result).Inc()
}

func (p *Prometheus) ConversionOutcome(outcome string) {
	p.conversionOutcomes.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry, mostly for tests
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
