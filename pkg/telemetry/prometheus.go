// Package telemetry exports registry and gateway metrics to Prometheus.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iHeyTang/mcp-uni/pkg/mcphost"
)

// PrometheusMetrics records registry and forwarding activity.
type PrometheusMetrics struct {
	connectAttempts   *prometheus.CounterVec
	connectedBackends prometheus.Gauge
	forwardDuration   *prometheus.HistogramVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		connectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpuni_backend_connect_attempts_total",
				Help: "Total number of backend connection attempts",
			},
			[]string{"backend", "outcome"},
		),
		connectedBackends: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpuni_connected_backends",
				Help: "Current number of connected backends",
			},
		),
		forwardDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpuni_forward_duration_seconds",
				Help:    "Duration of requests forwarded to backends in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind", "status"},
		),
	}
}

func (p *PrometheusMetrics) ObserveConnectAttempt(backend string, err error) {
	p.connectAttempts.WithLabelValues(backend, outcome(err)).Inc()
}

func (p *PrometheusMetrics) SetConnectedBackends(n int) {
	p.connectedBackends.Set(float64(n))
}

// ObserveForward records one forwarded call. kind is tool, prompt or
// resource.
func (p *PrometheusMetrics) ObserveForward(kind string, duration time.Duration, err error) {
	p.forwardDuration.WithLabelValues(kind, outcome(err)).Observe(duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

var _ mcphost.Metrics = (*PrometheusMetrics)(nil)
