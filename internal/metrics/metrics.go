// Package metrics exports pipeline counters and stage timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/florae/internal/pipeline"
)

const namespace = "florae"

// Recorder owns a private registry so tests and embedded servers do not
// collide on the global one.
type Recorder struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	stages      *prometheus.HistogramVec
	warnings    *prometheus.CounterVec
	sessions    prometheus.GaugeFunc
}

// New creates a recorder. liveSessions may be nil.
func New(liveSessions func() int) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by target state and failure reason.",
		}, []string{"state", "reason"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in recognizing, enriching and saving.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage", "outcome"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_warnings_total",
			Help:      "Best-effort steps that failed after a plant was stored.",
		}, []string{"code"}),
	}
	r.registry.MustRegister(
		r.transitions,
		r.stages,
		r.warnings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if liveSessions != nil {
		r.sessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Sessions currently held in memory.",
		}, func() float64 { return float64(liveSessions()) })
		r.registry.MustRegister(r.sessions)
	}
	return r
}

// Observe is a pipeline.Observer.
func (r *Recorder) Observe(ev pipeline.Event) {
	r.transitions.WithLabelValues(string(ev.State), string(ev.Reason)).Inc()

	switch ev.From {
	case pipeline.StateRecognizing, pipeline.StateEnriching, pipeline.StateSaving:
		outcome := "ok"
		if ev.State == pipeline.StateFailed {
			outcome = "failed"
		} else if ev.State == pipeline.StateIdle {
			outcome = "cancelled"
		}
		r.stages.WithLabelValues(string(ev.From), outcome).Observe(seconds(ev.Elapsed))
	}
}

// SaveWarning counts a best-effort failure reported by the gateway.
func (r *Recorder) SaveWarning(code string) {
	r.warnings.WithLabelValues(code).Inc()
}

// TrackDroppedEvents exports a counter read from dropped, which must be
// monotonic.
func (r *Recorder) TrackDroppedEvents(dropped func() int64) {
	r.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sse_events_dropped_total",
		Help:      "Session transitions the event stream discarded because its queue was full.",
	}, func() float64 { return float64(dropped()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func seconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
