// Package metrics exposes Prometheus counters for registration traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeCreated    = "created"
	OutcomeIdempotent = "idempotent"
	OutcomeCanceled   = "canceled"
	OutcomeNoop       = "noop"
	OutcomeDenied     = "denied"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Registrations   *prometheus.CounterVec
	TicketsIssued   *prometheus.CounterVec
	NotifyFailures  prometheus.Counter
	NotifyDropped   prometheus.Counter
	TicketsVerified *prometheus.CounterVec
}

// New registers every collector, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "events",
			Name:      "registration_operations_total",
			Help:      "Join and cancel calls by operation, capacity and outcome.",
		}, []string{"operation", "capacity", "outcome"}),
		TicketsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "events",
			Name:      "tickets_issued_total",
			Help:      "Tickets minted, by capacity.",
		}, []string{"capacity"}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "events",
			Name:      "change_notifications_failed_total",
			Help:      "Registration changes that could not be published.",
		}),
		NotifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "events",
			Name:      "change_notifications_dropped_total",
			Help:      "Registration changes discarded because a subscriber was not reading.",
		}),
		TicketsVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "events",
			Name:      "ticket_verifications_total",
			Help:      "Scanned payload verifications by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.Registrations,
		m.TicketsIssued,
		m.NotifyFailures,
		m.NotifyDropped,
		m.TicketsVerified,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
