// Package metrics records compilation counters and latencies with
// Prometheus collectors.
package metrics

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Result labels for CompileTotal.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Result labels for cache lookups.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Recorder owns the compile collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	compileTotal    *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	compileErrors   *prometheus.CounterVec
	blockCount      prometheus.Histogram
	parameterCount  prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
}

// NewRecorder registers the compile collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		compileTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gqlc_compile_total",
			Help: "Total compilations by backend and result",
		}, []string{"backend", "result"}),
		compileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gqlc_compile_duration_seconds",
			Help:    "Compilation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us to ~100ms
		}, []string{"backend"}),
		compileErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gqlc_compile_errors_total",
			Help: "Compilation failures by phase and code",
		}, []string{"phase", "code"}),
		blockCount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gqlc_ir_blocks",
			Help:    "IR blocks per compiled query",
			Buckets: []float64{4, 8, 16, 32, 64, 128, 256, 1024},
		}),
		parameterCount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gqlc_query_parameters",
			Help:    "Parameters per compiled query",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gqlc_cache_lookups_total",
			Help: "Compile cache lookups by backend and result",
		}, []string{"backend", "result"}),
	}
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveSuccess records one successful compilation.
func (r *Recorder) ObserveSuccess(backend string, d time.Duration, blocks, params int) {
	if r == nil {
		return
	}
	r.compileTotal.WithLabelValues(backend, ResultOK).Inc()
	r.compileDuration.WithLabelValues(backend).Observe(d.Seconds())
	r.blockCount.Observe(float64(blocks))
	r.parameterCount.Observe(float64(params))
}

// ObserveFailure records one failed compilation. An empty code is
// reported as "unknown".
func (r *Recorder) ObserveFailure(backend, phase, code string, d time.Duration) {
	if r == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	if phase == "" {
		phase = "unknown"
	}
	r.compileTotal.WithLabelValues(backend, ResultError).Inc()
	r.compileDuration.WithLabelValues(backend).Observe(d.Seconds())
	r.compileErrors.WithLabelValues(phase, code).Inc()
}

// ObserveCacheLookup records one compile cache lookup.
func (r *Recorder) ObserveCacheLookup(backend string, hit bool) {
	if r == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	r.cacheLookups.WithLabelValues(backend, result).Inc()
}

// WriteFile writes every gathered metric family to path in the Prometheus
// text exposition format.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
