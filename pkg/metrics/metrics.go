// Copyright 2025 Certen Protocol
//
// Package metrics exposes the Prometheus gauges and counters the engine's
// background loops and executor publish, mirroring the health-logging
// registry pattern used elsewhere in the retrieved pack.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the engine publishes behind a single
// prometheus.Registry, so a process can expose them on one /metrics
// endpoint regardless of how many components it runs.
type Registry struct {
	registry *prometheus.Registry

	BlocksAppended   prometheus.Counter
	ExecuteErrors    prometheus.Counter
	TimeoutsDetected prometheus.Counter
	PaymentsObserved prometheus.Counter
	OpenBills        prometheus.Gauge
}

// NewRegistry builds a Registry and registers every metric with it.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		BlocksAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ebillchain_blocks_appended_total",
			Help: "Total number of blocks successfully appended to any bill chain.",
		}),
		ExecuteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ebillchain_execute_errors_total",
			Help: "Total number of Execute calls that returned an error, plus notification failures after a successful append.",
		}),
		TimeoutsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ebillchain_timeouts_detected_total",
			Help: "Total number of deadline timeouts detected by the deadline engine.",
		}),
		PaymentsObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ebillchain_payments_observed_total",
			Help: "Total number of observed payments that advanced a bill chain.",
		}),
		OpenBills: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ebillchain_open_bills",
			Help: "Number of bill chains known to the chain store.",
		}),
	}
	reg.MustRegister(r.BlocksAppended, r.ExecuteErrors, r.TimeoutsDetected, r.PaymentsObserved, r.OpenBills)
	return r
}

// Handler returns the http.Handler serving this registry's metrics in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
