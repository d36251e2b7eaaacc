package jobserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.buildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pressgate",
			Subsystem: "jobserver",
			Name:      "builds_total",
			Help:      "Count of rebuild jobs by kind and outcome",
		}, []string{"journal", "kind", "outcome"})

		r.buildDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pressgate",
			Subsystem: "jobserver",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock duration of rebuild jobs",
			Buckets:   durationBuckets,
		}, []string{"journal", "kind"})

		collectors := []prometheus.Collector{r.buildsTotal, r.buildDuration}
		for _, collector := range collectors {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						r.buildsTotal = v
					case *prometheus.HistogramVec:
						r.buildDuration = v
					}
				}
			}
		}
		r.metricsInitialized = true
	})
}

func (r *Router) recordBuild(journal, kind, outcome string, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	r.buildsTotal.With(prometheus.Labels{"journal": journal, "kind": kind, "outcome": outcome}).Inc()
	r.buildDuration.With(prometheus.Labels{"journal": journal, "kind": kind}).Observe(duration.Seconds())
}
