// Package metrics exposes Prometheus instruments for analyses, jobs and the
// score cache.
//
// Usage:
//
//	metrics.RecordAnalysis("image", metrics.OutcomeScored, 120*time.Millisecond, 67)
//	metrics.RecordCacheLookup(true)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analysis outcomes.
const (
	OutcomeScored    = "scored"
	OutcomeFallback  = "fallback"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

var (
	// AnalysesTotal counts finished analyses by media type and outcome.
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagrade_analyses_total",
			Help: "Total number of media analyses",
		},
		[]string{"media_type", "outcome"},
	)

	// AnalysisDuration tracks how long scoring takes, cache hits excluded.
	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediagrade_analysis_duration_seconds",
			Help:    "Duration of media analyses in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"media_type"},
	)

	// QualityPercentage is the distribution of reported percentages.
	QualityPercentage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediagrade_quality_percentage",
			Help:    "Distribution of quality percentages",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"media_type"},
	)

	// JobsRunning is the number of jobs currently being analysed.
	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediagrade_jobs_running",
			Help: "Number of analysis jobs currently running",
		},
	)

	// CacheLookupsTotal counts score cache lookups by result (hit, miss).
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagrade_cache_lookups_total",
			Help: "Total number of score cache lookups",
		},
		[]string{"result"},
	)
)

// RecordAnalysis records one finished analysis. The duration and percentage
// are observed only for scored or fallback outcomes.
func RecordAnalysis(mediaType, outcome string, elapsed time.Duration, percentage int) {
	AnalysesTotal.WithLabelValues(mediaType, outcome).Inc()
	if outcome != OutcomeScored && outcome != OutcomeFallback {
		return
	}
	AnalysisDuration.WithLabelValues(mediaType).Observe(elapsed.Seconds())
	QualityPercentage.WithLabelValues(mediaType).Observe(float64(percentage))
}

// RecordCacheLookup records a score cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}
