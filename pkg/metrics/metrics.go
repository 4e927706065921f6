package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Collector captures counters, gauges and histograms.
type Collector interface {
	IncCounter(name string, labels map[string]string, delta float64)
	SetGauge(name string, labels map[string]string, value float64)
	ObserveHistogram(name string, labels map[string]string, value float64)
}

// Discard is a Collector that drops everything.
var Discard Collector = discard{}

type discard struct{}

func (discard) IncCounter(string, map[string]string, float64)       {}
func (discard) SetGauge(string, map[string]string, float64)         {}
func (discard) ObserveHistogram(string, map[string]string, float64) {}

var help = map[string]string{
	"cursor_moves_total":    "Cursor moves that changed the reconstructed version.",
	"edits_replayed_total":  "Version edits applied or reverted, by direction.",
	"cursor_move_seconds":   "Time spent moving the cursor.",
	"overlap_queries_total": "Overlap queries, by level of the selected file.",
	"sessions":              "Open sessions.",
	"http_requests_total":   "HTTP requests, by method, route and status.",
	"http_request_seconds":  "HTTP request latency, by route.",
}

type kind uint8

const (
	counterKind kind = iota
	gaugeKind
	histogramKind
)

func (k kind) String() string {
	switch k {
	case counterKind:
		return "counter"
	case gaugeKind:
		return "gauge"
	default:
		return "histogram"
	}
}

// family is one registered vector. The label names are fixed by the first
// use of the metric name.
type family struct {
	kind      kind
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
}

// Registry is a Collector backed by a private Prometheus registry. Vectors
// are created on first use; every metric name is prefixed with the namespace
// and an underscore.
type Registry struct {
	mu        sync.Mutex
	namespace string
	reg       *prometheus.Registry
	families  map[string]*family
}

func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace: namespace,
		reg:       prometheus.NewRegistry(),
		families:  make(map[string]*family),
	}
}

func (r *Registry) IncCounter(name string, labels map[string]string, delta float64) {
	f, err := r.family(counterKind, name, labels)
	if err == nil {
		var c prometheus.Counter
		if c, err = f.counter.GetMetricWith(labels); err == nil {
			c.Add(delta)
			return
		}
	}
	slog.Warn("dropping counter update", "name", name, "error", err)
}

func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	f, err := r.family(gaugeKind, name, labels)
	if err == nil {
		var g prometheus.Gauge
		if g, err = f.gauge.GetMetricWith(labels); err == nil {
			g.Set(value)
			return
		}
	}
	slog.Warn("dropping gauge update", "name", name, "error", err)
}

func (r *Registry) ObserveHistogram(name string, labels map[string]string, value float64) {
	f, err := r.family(histogramKind, name, labels)
	if err == nil {
		var o prometheus.Observer
		if o, err = f.histogram.GetMetricWith(labels); err == nil {
			o.Observe(value)
			return
		}
	}
	slog.Warn("dropping histogram observation", "name", name, "error", err)
}

func (r *Registry) family(k kind, name string, labels map[string]string) (*family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.families[name]; ok {
		if f.kind != k {
			return nil, fmt.Errorf("%s is a %s, not a %s", name, f.kind, k)
		}
		return f, nil
	}

	names := make([]string, 0, len(labels))
	for l := range labels {
		names = append(names, l)
	}
	sort.Strings(names)

	h := help[name]
	if h == "" {
		h = name
	}

	f := &family{kind: k}
	var c prometheus.Collector
	switch k {
	case counterKind:
		f.counter = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: r.namespace, Name: name, Help: h}, names)
		c = f.counter
	case gaugeKind:
		f.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: r.namespace, Name: name, Help: h}, names)
		c = f.gauge
	default:
		f.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace,
			Name:      name,
			Help:      h,
			Buckets:   prometheus.DefBuckets,
		}, names)
		c = f.histogram
	}
	if err := r.reg.Register(c); err != nil {
		return nil, err
	}

	r.families[name] = f
	return f, nil
}

// Value returns the current value of a counter or gauge, or the sum of a
// histogram.
func (r *Registry) Value(name string, labels map[string]string) (float64, bool) {
	fullName := prometheus.BuildFQName(r.namespace, "", name)

	mfs, err := r.reg.Gather()
	if err != nil {
		slog.Warn("failed to gather metrics", "error", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != fullName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m.GetLabel(), labels) {
				continue
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue(), true
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue(), true
			case dto.MetricType_HISTOGRAM:
				return m.GetHistogram().GetSampleSum(), true
			}
		}
	}
	return 0, false
}

func labelsMatch(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, p := range pairs {
		if v, ok := labels[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		ErrorLog:      errorLog{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// errorLog forwards promhttp errors to slog.
type errorLog struct{}

func (errorLog) Println(v ...interface{}) {
	slog.Warn("metrics exposition failed", "error", fmt.Sprint(v...))
}
