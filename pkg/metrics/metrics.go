// Package metrics is a small Prometheus-compatible registry for counters
// and histograms. Label pairs are part of the series name, built with
// WithLabels, and series of one family render under a shared HELP/TYPE
// header.
package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are latency buckets in seconds, sized for graph queries
// and embedding calls.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Counter only goes up.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Histogram counts observations into fixed upper bounds.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64 // cumulative per bound
	sum    float64
	count  uint64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.bounds {
		if v <= b {
			h.counts[i]++
		}
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

type kind string

const (
	kindCounter   kind = "counter"
	kindHistogram kind = "histogram"
)

type family struct {
	kind   kind
	help   string
	series map[string]any // labels ("" or `k="v",...`) -> *Counter | *Histogram
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	order    []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

// WithLabels appends label pairs to name: WithLabels("x", "k", "v") is
// `x{k="v"}`. An odd number of kvs returns name unchanged.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	pairs := make([]string, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", kvs[i], kvs[i+1]))
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// split separates `x{k="v"}` into "x" and `k="v"`.
func split(name string) (base, labels string) {
	i := strings.IndexByte(name, '{')
	if i < 0 {
		return name, ""
	}
	return name[:i], strings.TrimSuffix(name[i+1:], "}")
}

// series returns the metric for name, creating it with mk on first use.
func (r *Registry) series(name, help string, k kind, mk func() any) any {
	base, labels := split(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[base]
	if !ok {
		f = &family{kind: k, series: make(map[string]any)}
		r.families[base] = f
		r.order = append(r.order, base)
	}
	if f.help == "" {
		f.help = help
	}
	if m, ok := f.series[labels]; ok {
		return m
	}
	m := mk()
	f.series[labels] = m
	return m
}

// Counter returns the counter called name, creating it if needed.
func (r *Registry) Counter(name, help string) *Counter {
	m := r.series(name, help, kindCounter, func() any { return &Counter{} })
	if c, ok := m.(*Counter); ok {
		return c
	}
	return &Counter{}
}

// Histogram returns the histogram called name, creating it with buckets
// (DefaultBuckets when nil) if needed.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	m := r.series(name, help, kindHistogram, func() any {
		bounds := slices.Clone(buckets)
		slices.Sort(bounds)
		return &Histogram{bounds: bounds, counts: make([]uint64, len(bounds))}
	})
	if h, ok := m.(*Histogram); ok {
		return h
	}
	return &Histogram{}
}

// Render writes every family in the Prometheus text format.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, base := range r.order {
		f := r.families[base]
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", base, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", base, f.kind)
		labelSets := make([]string, 0, len(f.series))
		for l := range f.series {
			labelSets = append(labelSets, l)
		}
		slices.Sort(labelSets)
		for _, l := range labelSets {
			switch m := f.series[l].(type) {
			case *Counter:
				fmt.Fprintf(&b, "%s%s %d\n", base, wrap(l), m.Value())
			case *Histogram:
				renderHistogram(&b, base, l, m)
			}
		}
	}
	return b.String()
}

func renderHistogram(b *strings.Builder, base, labels string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	extra := ""
	if labels != "" {
		extra = "," + labels
	}
	for i, bound := range h.bounds {
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"%s} %d\n", base, bound, extra, h.counts[i])
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"%s} %d\n", base, extra, h.count)
	fmt.Fprintf(b, "%s_sum%s %g\n", base, wrap(labels), h.sum)
	fmt.Fprintf(b, "%s_count%s %d\n", base, wrap(labels), h.count)
}

func wrap(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

// Handler serves Render output.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}

// ServeAsync serves /metrics on port in the background. The caller shuts
// the returned server down.
func (r *Registry) ServeAsync(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "port", port, "error", err)
		}
	}()
	return srv
}
