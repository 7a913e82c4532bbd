// Package telemetry owns all metric state for the adapter.
//
// A single Registry is constructed at process start and handed by
// reference to every component that accumulates or exposes metrics.
// Metric families register on first use; the registry tracks the kind and
// label names of each family so a conflicting re-registration is reported
// instead of silently coerced.
package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// ErrKindConflict reports a metric family requested with a kind or label
// set that differs from its first registration. This is a programming
// error: families are only created during collector construction, so the
// conflict surfaces before any traffic is processed.
var ErrKindConflict = errors.New("metric family re-registered with a different kind or label set")

type familyKind int

const (
	kindCounter familyKind = iota
	kindGauge
	kindHistogram
)

func (k familyKind) String() string {
	switch k {
	case kindCounter:
		return "counter"
	case kindGauge:
		return "gauge"
	case kindHistogram:
		return "histogram"
	}
	return "unknown"
}

type family struct {
	kind      familyKind
	labelSig  string
	collector prometheus.Collector
}

// Registry is a thread-safe store of named metric families backed by a
// dedicated prometheus registry (no ambient global state).
type Registry struct {
	mu          sync.Mutex
	prom        *prometheus.Registry
	families    map[string]family
	constLabels prometheus.Labels
	buckets     []float64
}

// New creates an empty registry. Const labels are attached to every
// family; buckets apply to every histogram (nil = prometheus.DefBuckets).
func New(constLabels map[string]string, buckets []float64) *Registry {
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	return &Registry{
		prom:        prometheus.NewRegistry(),
		families:    make(map[string]family),
		constLabels: constLabels,
		buckets:     buckets,
	}
}

func labelSignature(labelNames []string) string {
	return strings.Join(labelNames, ",")
}

func (r *Registry) lookup(name string, kind familyKind, labelNames []string) (prometheus.Collector, bool, error) {
	f, ok := r.families[name]
	if !ok {
		return nil, false, nil
	}
	if f.kind != kind || f.labelSig != labelSignature(labelNames) {
		return nil, false, fmt.Errorf("%w: %s is a %s(%s)", ErrKindConflict, name, f.kind, f.labelSig)
	}
	return f.collector, true, nil
}

func (r *Registry) register(name string, kind familyKind, labelNames []string, c prometheus.Collector) error {
	if err := r.prom.Register(c); err != nil {
		return err
	}
	r.families[name] = family{kind: kind, labelSig: labelSignature(labelNames), collector: c}
	return nil
}

// Counter returns the counter vec registered under name, creating it on
// first use.
func (r *Registry) Counter(name, help string, labelNames ...string) (*prometheus.CounterVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok, err := r.lookup(name, kindCounter, labelNames); err != nil {
		return nil, err
	} else if ok {
		return c.(*prometheus.CounterVec), nil
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        name,
		Help:        help,
		ConstLabels: r.constLabels,
	}, labelNames)
	if err := r.register(name, kindCounter, labelNames, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// Gauge returns the gauge vec registered under name, creating it on
// first use.
func (r *Registry) Gauge(name, help string, labelNames ...string) (*prometheus.GaugeVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok, err := r.lookup(name, kindGauge, labelNames); err != nil {
		return nil, err
	} else if ok {
		return c.(*prometheus.GaugeVec), nil
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: r.constLabels,
	}, labelNames)
	if err := r.register(name, kindGauge, labelNames, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// Histogram returns the histogram vec registered under name, creating it
// on first use with the registry-wide buckets.
func (r *Registry) Histogram(name, help string, labelNames ...string) (*prometheus.HistogramVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok, err := r.lookup(name, kindHistogram, labelNames); err != nil {
		return nil, err
	} else if ok {
		return c.(*prometheus.HistogramVec), nil
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        name,
		Help:        help,
		ConstLabels: r.constLabels,
		Buckets:     r.buckets,
	}, labelNames)
	if err := r.register(name, kindHistogram, labelNames, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// MustCounter is Counter for startup paths where a conflict is fatal.
func (r *Registry) MustCounter(name, help string, labelNames ...string) *prometheus.CounterVec {
	vec, err := r.Counter(name, help, labelNames...)
	if err != nil {
		panic(err)
	}
	return vec
}

// MustGauge is Gauge for startup paths where a conflict is fatal.
func (r *Registry) MustGauge(name, help string, labelNames ...string) *prometheus.GaugeVec {
	vec, err := r.Gauge(name, help, labelNames...)
	if err != nil {
		panic(err)
	}
	return vec
}

// MustHistogram is Histogram for startup paths where a conflict is fatal.
func (r *Registry) MustHistogram(name, help string, labelNames ...string) *prometheus.HistogramVec {
	vec, err := r.Histogram(name, help, labelNames...)
	if err != nil {
		panic(err)
	}
	return vec
}

// Gather returns a point-in-time snapshot of every family. Per-cell
// consistency is guaranteed by the underlying client; cross-cell
// simultaneity is not.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.prom.Gather()
}

// Handler serves the registry in Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}
