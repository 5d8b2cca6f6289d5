package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder tracks validation run outcomes. A nil Recorder is a no-op.
type Recorder struct {
	runs        *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	duration    prometheus.Histogram
	fetches     *prometheus.CounterVec
}

// NewRecorder registers the run collectors on reg.
func NewRecorder(reg *Registry) *Recorder {
	ns := reg.Namespace()
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_total",
			Help:      "Validation runs by outcome.",
		}, []string{"status"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "diagnostics_total",
			Help:      "Diagnostics emitted by severity.",
		}, []string{"severity"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single validation run.",
			Buckets:   prometheus.DefBuckets,
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "ruleset_fetches_total",
			Help:      "Remote ruleset fetches by result.",
		}, []string{"result"}),
	}
	reg.Register(r.runs)
	reg.Register(r.diagnostics)
	reg.Register(r.duration)
	reg.Register(r.fetches)
	return r
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(status string, elapsed time.Duration, bySeverity map[string]int) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
	r.duration.Observe(elapsed.Seconds())
	for sev, n := range bySeverity {
		if n > 0 {
			r.diagnostics.WithLabelValues(sev).Add(float64(n))
		}
	}
}

// ObserveFetch records a remote ruleset fetch. Its signature matches the
// ruleset fetcher observer hook.
func (r *Recorder) ObserveFetch(_ string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.fetches.WithLabelValues(result).Inc()
}
