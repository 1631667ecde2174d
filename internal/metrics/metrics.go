// Package metrics exposes the Prometheus collectors the upstream session
// updates per stream: an in-flight gauge and per-outcome counters,
// generalized from the teacher's per-HTTP-request metrics to per-h2-stream.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels the way a stream ended.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeReset      Outcome = "reset"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeBadGateway Outcome = "bad_gateway"
)

var (
	streamsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "h2gate_upstream_streams_in_flight",
		Help: "Number of HTTP/2 streams currently open on the upstream side.",
	})

	streamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h2gate_upstream_streams_total",
		Help: "Total number of HTTP/2 streams closed, by outcome.",
	}, []string{"outcome"})

	windowUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h2gate_upstream_window_updates_total",
		Help: "Total number of WINDOW_UPDATE frames emitted, by scope.",
	}, []string{"scope"})
)

// StreamOpened increments the in-flight gauge.
func StreamOpened() { streamsInFlight.Inc() }

// StreamClosed decrements the in-flight gauge and records the outcome.
func StreamClosed(outcome Outcome) {
	streamsInFlight.Dec()
	streamsTotal.WithLabelValues(string(outcome)).Inc()
}

// WindowUpdateSent records a WINDOW_UPDATE emission; scope is "connection"
// or "stream".
func WindowUpdateSent(scope string) {
	windowUpdatesTotal.WithLabelValues(scope).Inc()
}
