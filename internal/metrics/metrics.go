package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zai2api"

// Recorder receives per-request outcomes from the proxy.
type Recorder interface {
	RecordOutcome(status int, duration time.Duration, model string)
	RecordCredential(source string)
	RecordStreamTermination(reason string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordOutcome(int, time.Duration, string) {}
func (Nop) RecordCredential(string)                  {}
func (Nop) RecordStreamTermination(string)           {}

// Prometheus records outcomes as Prometheus collectors.
type Prometheus struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	credentials  *prometheus.CounterVec
	terminations *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Chat completion requests by HTTP status and resolved model.",
		}, []string{"status", "model"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Chat completion request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"model"}),
		credentials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_credentials_total",
			Help:      "Upstream credentials used, by source.",
		}, []string{"source"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_terminations_total",
			Help:      "Upstream stream terminations by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(p.requests, p.duration, p.credentials, p.terminations)
	return p
}

func (p *Prometheus) RecordOutcome(status int, duration time.Duration, model string) {
	p.requests.WithLabelValues(strconv.Itoa(status), model).Inc()
	p.duration.WithLabelValues(model).Observe(duration.Seconds())
}

func (p *Prometheus) RecordCredential(source string) {
	p.credentials.WithLabelValues(source).Inc()
}

func (p *Prometheus) RecordStreamTermination(reason string) {
	p.terminations.WithLabelValues(reason).Inc()
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
