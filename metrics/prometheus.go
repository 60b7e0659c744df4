package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	promNamespace     = "gatekeeper"
	promGateSubsystem = "gate"
)

// Prometheus implements the prometheus metrics backend.
type Prometheus struct {
	counterM   *prometheus.CounterVec
	gaugeM     *prometheus.GaugeVec
	histogramM *prometheus.HistogramVec

	opts     Options
	registry *prometheus.Registry
	handler  http.Handler
}

// NewPrometheus returns a new Prometheus metric backend.
func NewPrometheus(opts Options) *Prometheus {
	namespace := promNamespace
	if opts.Prefix != "" {
		namespace = strings.TrimSuffix(opts.Prefix, ".")
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promGateSubsystem,
		Name:      "decision_total",
		Help:      "The total of gate decisions by key.",
	}, []string{"key"})

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: promGateSubsystem,
		Name:      "state",
		Help:      "Size of the tracked gate state by key.",
	}, []string{"key"})

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promGateSubsystem,
		Name:      "check_duration_seconds",
		Help:      "Duration in seconds of the gate checks by key.",
		Buckets:   opts.HistogramBuckets,
	}, []string{"key"})

	p := &Prometheus{
		counterM:   counter,
		gaugeM:     gauge,
		histogramM: histogram,
		opts:       opts,
		registry:   prometheus.NewRegistry(),
	}

	p.registry.MustRegister(p.counterM, p.gaugeM, p.histogramM)

	if opts.EnableRuntimeMetrics {
		p.registry.MustRegister(collectors.NewGoCollector())
		p.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return p
}

func (p *Prometheus) sinceS(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func (p *Prometheus) MeasureSince(key string, start time.Time) {
	t := p.sinceS(start)
	p.histogramM.WithLabelValues(key).Observe(t)
}

func (p *Prometheus) IncCounter(key string) {
	p.counterM.WithLabelValues(key).Inc()
}

func (p *Prometheus) IncCounterBy(key string, value int64) {
	p.counterM.WithLabelValues(key).Add(float64(value))
}

func (p *Prometheus) UpdateGauge(key string, v float64) {
	p.gaugeM.WithLabelValues(key).Set(v)
}

// RegisterHandler registers the prometheus exposition handler on the
// given mux.
func (p *Prometheus) RegisterHandler(path string, mux *http.ServeMux) {
	mux.Handle(path, p.getHandler())
}

func (p *Prometheus) getHandler() http.Handler {
	if p.handler != nil {
		return p.handler
	}

	p.handler = promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
	return p.handler
}
