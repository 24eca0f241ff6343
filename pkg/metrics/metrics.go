// Package metrics provides simple, dependency-free metrics with Prometheus
// text exposition. Atomic values, mutex-protected registry; good enough for
// one nightly process.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing number.
type Counter struct {
	name string
	help string
	val  int64
}

func (c *Counter) Inc(delta int64) { atomic.AddInt64(&c.val, delta) }
func (c *Counter) Get() int64      { return atomic.LoadInt64(&c.val) }

// Gauge is an arbitrary number that can go up and down.
type Gauge struct {
	name string
	help string
	f64  uint64 // float64 bits stored atomically
}

func (g *Gauge) SetFloat64(v float64) { atomic.StoreUint64(&g.f64, math.Float64bits(v)) }
func (g *Gauge) GetFloat64() float64  { return math.Float64frombits(atomic.LoadUint64(&g.f64)) }

// Histogram with fixed buckets (cumulative counts per upper bound) plus
// sum/count.
type Histogram struct {
	name    string
	help    string
	buckets []float64 // sorted ascending
	counts  []uint64
	sum     uint64 // float64 bits
	count   uint64
}

func (h *Histogram) Observe(v float64) {
	for i, ub := range h.buckets {
		if v <= ub {
			atomic.AddUint64(&h.counts[i], 1)
			break
		}
	}
	atomic.AddUint64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		nv := math.Float64frombits(old) + v
		if atomic.CompareAndSwapUint64(&h.sum, old, math.Float64bits(nv)) {
			return
		}
	}
}

// Timer observes elapsed seconds into a histogram.
type Timer struct {
	h     *Histogram
	start time.Time
}

func (h *Histogram) Start() *Timer { return &Timer{h: h, start: time.Now()} }
func (t *Timer) Observe()          { t.h.Observe(time.Since(t.start).Seconds()) }

// Registry holds named metrics. Default is the process-wide instance.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

var Default = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	bs := append([]float64(nil), buckets...)
	sort.Float64s(bs)
	h := &Histogram{name: name, help: help, buckets: bs, counts: make([]uint64, len(bs))}
	r.histograms[name] = h
	return h
}

// Expose renders the registry in Prometheus text format.
func (r *Registry) Expose() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b []byte
	names := make([]string, 0, len(r.counters))
	for n := range r.counters {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c := r.counters[n]
		b = append(b, fmt.Sprintf("# HELP %s %s\n# TYPE %s counter\n%s %d\n", n, c.help, n, n, c.Get())...)
	}

	names = names[:0]
	for n := range r.gauges {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		g := r.gauges[n]
		b = append(b, fmt.Sprintf("# HELP %s %s\n# TYPE %s gauge\n%s %g\n", n, g.help, n, n, g.GetFloat64())...)
	}

	names = names[:0]
	for n := range r.histograms {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		h := r.histograms[n]
		b = append(b, fmt.Sprintf("# HELP %s %s\n# TYPE %s histogram\n", n, h.help, n)...)
		cum := uint64(0)
		for i, ub := range h.buckets {
			cum += atomic.LoadUint64(&h.counts[i])
			b = append(b, fmt.Sprintf("%s_bucket{le=%q} %d\n", n, fmt.Sprintf("%g", ub), cum)...)
		}
		b = append(b, fmt.Sprintf("%s_bucket{le=\"+Inf\"} %d\n", n, atomic.LoadUint64(&h.count))...)
		b = append(b, fmt.Sprintf("%s_sum %g\n", n, math.Float64frombits(atomic.LoadUint64(&h.sum)))...)
		b = append(b, fmt.Sprintf("%s_count %d\n", n, atomic.LoadUint64(&h.count))...)
	}
	return string(b)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, Default.Expose())
	})
}
