// Package metrics provides Prometheus metrics for the compliance agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	ProposalsTotal     *prometheus.CounterVec
	ProposalsPending   prometheus.Gauge
	CommitsTotal       prometheus.Counter
	GeneratorFallbacks prometheus.Counter
	RaidEntriesTotal   *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ProposalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_proposals_total",
				Help: "Total proposal lifecycle events by command and outcome.",
			},
			[]string{"command", "outcome"},
		),
		ProposalsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_proposals_pending",
				Help: "Number of proposals currently awaiting review.",
			},
		),
		CommitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_commits_total",
				Help: "Total commits written to project histories.",
			},
		),
		GeneratorFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_generator_fallbacks_total",
				Help: "Times the content generator was unavailable and the template fallback was used.",
			},
		),
		RaidEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_raid_entries_total",
				Help: "RAID register mutations by entry type and action.",
			},
			[]string{"type", "action"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_request_duration_seconds",
				Help:    "HTTP request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.ProposalsTotal)
	reg.MustRegister(m.ProposalsPending)
	reg.MustRegister(m.CommitsTotal)
	reg.MustRegister(m.GeneratorFallbacks)
	reg.MustRegister(m.RaidEntriesTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordProposal increments the proposal counter.
func (m *Metrics) RecordProposal(command, outcome string) {
	m.ProposalsTotal.WithLabelValues(command, outcome).Inc()
}

// RecordRaidEntry increments the RAID mutation counter.
func (m *Metrics) RecordRaidEntry(entryType, action string) {
	m.RaidEntriesTotal.WithLabelValues(entryType, action).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// ObserveDuration records request duration.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}
