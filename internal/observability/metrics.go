package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds metrics and renders them in Prometheus text format.
// Series are keyed by name plus labels, so the same name may carry several
// label sets.
type MetricsRegistry struct {
	mu       sync.RWMutex
	families map[string]*family
}

type family struct {
	name   string
	help   string
	kind   string
	series map[string]any
}

// Counter is a monotonically increasing metric.
type Counter struct {
	labels map[string]string
	mu     sync.Mutex
	value  float64
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	labels  map[string]string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{families: make(map[string]*family)}
}

// DefaultBuckets returns default histogram buckets for latency in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
}

func (r *MetricsRegistry) series(name, help, kind string, labels map[string]string, create func() any) any {
	key := formatLabels(labels)

	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[name]
	if !ok {
		f = &family{name: name, help: help, kind: kind, series: make(map[string]any)}
		r.families[name] = f
	}
	s, ok := f.series[key]
	if !ok {
		s = create()
		f.series[key] = s
	}
	return s
}

// Counter returns the counter for name and labels, creating it on first use.
func (r *MetricsRegistry) Counter(name, help string, labels map[string]string) *Counter {
	return r.series(name, help, "counter", labels, func() any {
		return &Counter{labels: labels}
	}).(*Counter)
}

// Histogram returns the histogram for name and labels, creating it on first
// use. nil buckets selects DefaultBuckets.
func (r *MetricsRegistry) Histogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	return r.series(name, help, "histogram", labels, func() any {
		if buckets == nil {
			buckets = DefaultBuckets()
		}
		return &Histogram{labels: labels, buckets: buckets, counts: make([]uint64, len(buckets))}
	}).(*Histogram)
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler serves the registry in Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes every family, sorted by name then label set.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.families))
	for n := range r.families {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		f := r.families[n]
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)

		keys := make([]string, 0, len(f.series))
		for k := range f.series {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			switch s := f.series[k].(type) {
			case *Counter:
				fmt.Fprintf(w, "%s%s %s\n", f.name, k, formatFloat(s.Value()))
			case *Histogram:
				writeHistogram(w, f.name, s)
			}
		}
	}
}

func writeHistogram(w io.Writer, name string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, bound := range h.buckets {
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabels(labels), h.counts[i])
	}
	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabels(labels), h.count)
	fmt.Fprintf(w, "%s_sum%s %s\n", name, formatLabels(h.labels), formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count%s %d\n", name, formatLabels(h.labels), h.count)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Quote(labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PipelineMetrics are the counters and timings of the pipelines.
type PipelineMetrics struct {
	Registry *MetricsRegistry

	ChunksEmbedded *Counter
	ChunksSkipped  *Counter
	RecordsDeleted *Counter
	FilesIngested  *Counter
}

// NewPipelineMetrics registers the pipeline metrics in a fresh registry.
func NewPipelineMetrics() *PipelineMetrics {
	r := NewMetricsRegistry()
	return &PipelineMetrics{
		Registry:       r,
		ChunksEmbedded: r.Counter("promptgen_chunks_embedded_total", "Chunks stored as new vector records", nil),
		ChunksSkipped:  r.Counter("promptgen_chunks_skipped_total", "Chunks already present under the same scope", nil),
		RecordsDeleted: r.Counter("promptgen_records_deleted_total", "Vector records removed", nil),
		FilesIngested:  r.Counter("promptgen_files_ingested_total", "Files passed through ingestion", nil),
	}
}

// RecordOperation records the duration and outcome of one pipeline call.
func (m *PipelineMetrics) RecordOperation(op string, d time.Duration, err error) {
	labels := map[string]string{"op": op}
	m.Registry.Histogram("promptgen_operation_duration_seconds", "Pipeline operation duration", labels, nil).Observe(d.Seconds())
	if err != nil {
		m.Registry.Counter("promptgen_operation_errors_total", "Pipeline operation failures", labels).Inc()
	}
}

// RecordEmbed records ingestion counts for one file.
func (m *PipelineMetrics) RecordEmbed(embedded, skipped int) {
	m.FilesIngested.Inc()
	m.ChunksEmbedded.Add(float64(embedded))
	m.ChunksSkipped.Add(float64(skipped))
}

// RecordDelete records removed records.
func (m *PipelineMetrics) RecordDelete(n int) {
	m.RecordsDeleted.Add(float64(n))
}

// Handler serves the metrics endpoint.
func (m *PipelineMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}
