/*
Package metrics implements collection of the gatekeeper's operational
metrics: admit/reject decision counters per trust tier, the size of the
tracked counter and block state, and the latency of the gate check.

Two backend formats are supported, the Go implementation of the Coda
Hale metrics library and Prometheus. The collected values are exposed
on the support listener under /metrics.
*/
package metrics

import (
	"net/http"
	"time"
)

// Kind is the type a metrics backend can have.
type Kind int

const (
	UnknownKind Kind = iota

	// CodaHaleKind is the Coda Hale backend, exposing the metrics
	// in JSON format.
	CodaHaleKind

	// PrometheusKind is the Prometheus backend, exposing the
	// metrics in the Prometheus text format.
	PrometheusKind
)

func (k Kind) String() string {
	switch k {
	case CodaHaleKind:
		return "codahale"
	case PrometheusKind:
		return "prometheus"
	default:
		return "unknown"
	}
}

// ParseKind parses the metrics backend flavour.
func ParseKind(name string) Kind {
	switch name {
	case "", "codahale":
		return CodaHaleKind
	case "prometheus":
		return PrometheusKind
	default:
		return UnknownKind
	}
}

// Options for initializing metrics collection.
type Options struct {
	// Format of the metrics backend.
	Format Kind

	// Common prefix for the keys of the different collected
	// metrics.
	Prefix string

	// If set, garbage collector metrics are collected in addition
	// to the gate metrics.
	EnableDebugGcMetrics bool

	// If set, Go runtime metrics are collected in addition to the
	// gate metrics.
	EnableRuntimeMetrics bool

	// If set, the Coda Hale backend uses an exponentially decaying
	// sample for the timers.
	UseExpDecaySample bool

	// Buckets used by the Prometheus backend for the duration
	// histograms.
	HistogramBuckets []float64
}

// Metrics is the generic interface the gatekeeper components use to
// report measurements.
type Metrics interface {
	// MeasureSince adds a measurement of the elapsed time since
	// start for the given key.
	MeasureSince(key string, start time.Time)

	// IncCounter increments the counter for the given key.
	IncCounter(key string)

	// IncCounterBy increments the counter for the given key by the
	// given value.
	IncCounterBy(key string, value int64)

	// UpdateGauge sets the gauge for the given key.
	UpdateGauge(key string, v float64)

	// RegisterHandler registers the backend's exposition handler
	// on the given mux under the given path.
	RegisterHandler(path string, mux *http.ServeMux)
}

// Void is a Metrics implementation that discards all measurements.
type Void struct{}

func (Void) MeasureSince(string, time.Time)       {}
func (Void) IncCounter(string)                    {}
func (Void) IncCounterBy(string, int64)           {}
func (Void) UpdateGauge(string, float64)          {}
func (Void) RegisterHandler(string, *http.ServeMux) {}

// Default is the global metrics instance used by components that were
// not configured with a specific one.
var Default Metrics = Void{}

// NewMetrics creates a metrics backend of the format selected in the
// options.
func NewMetrics(o Options) Metrics {
	switch o.Format {
	case PrometheusKind:
		return NewPrometheus(o)
	default:
		return NewCodaHale(o)
	}
}

// NewDefaultHandler returns a handler exposing the values collected by
// m under /metrics.
func NewDefaultHandler(m Metrics) http.Handler {
	mux := http.NewServeMux()
	m.RegisterHandler("/metrics", mux)
	return mux
}
