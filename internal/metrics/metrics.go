// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tierFetchesTotal         *prometheus.CounterVec
	tierEscalationsTotal     *prometheus.CounterVec
	sourcesProtectedTotal    prometheus.Counter
	articlesTotal            *prometheus.CounterVec
	runsTotal                *prometheus.CounterVec
	runDurationSeconds       prometheus.Histogram
	renderWorkerTotal        *prometheus.CounterVec
	renderWorkerPeakRSSBytes prometheus.Gauge
	classifierCallsTotal     *prometheus.CounterVec
	rateLimitDelaySeconds    *prometheus.HistogramVec
	httpRequestSeconds       *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		tierFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_tier_fetches_total",
				Help: "Fetch attempts per escalation tier, labeled by outcome (ok, invalid, error).",
			},
			[]string{"tier", "outcome"},
		)

		tierEscalationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_tier_escalations_total",
				Help: "Escalations out of a tier after failed validation.",
			},
			[]string{"from_tier"},
		)

		sourcesProtectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_sources_protected_total",
				Help: "Sources for which every bypass tier was exhausted in a cycle.",
			},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_articles_total",
				Help: "Articles handled per run, labeled by disposition (added, skipped, duplicate).",
			},
			[]string{"disposition"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Scrape runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_run_duration_seconds",
				Help:    "Wall-clock duration of full-fleet scrape runs.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
		)

		renderWorkerTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_render_worker_total",
				Help: "Isolated render worker invocations, labeled by outcome (ok, error, timeout, malformed).",
			},
			[]string{"outcome"},
		)

		renderWorkerPeakRSSBytes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_render_worker_peak_rss_bytes",
				Help: "Peak resident memory reported by the most recent render worker.",
			},
		)

		classifierCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_classifier_calls_total",
				Help: "Calls to the classification collaborator, labeled by operation and outcome.",
			},
			[]string{"op", "outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Per-domain politeness delays introduced before fetches.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_http_request_seconds",
				Help:    "HTTP request latency by method, route pattern, and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTierFetch counts one fetch attempt at a tier.
func ObserveTierFetch(tier int, outcome string) {
	if tierFetchesTotal == nil {
		return
	}
	tierFetchesTotal.WithLabelValues(strconv.Itoa(tier), outcome).Inc()
}

// ObserveEscalation counts an escalation out of the given tier.
func ObserveEscalation(fromTier int) {
	if tierEscalationsTotal == nil {
		return
	}
	tierEscalationsTotal.WithLabelValues(strconv.Itoa(fromTier)).Inc()
}

// ObserveSourceProtected counts a tier-exhausted source.
func ObserveSourceProtected() {
	if sourcesProtectedTotal == nil {
		return
	}
	sourcesProtectedTotal.Inc()
}

// ObserveArticle counts an article disposition.
func ObserveArticle(disposition string) {
	if articlesTotal == nil {
		return
	}
	articlesTotal.WithLabelValues(disposition).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(status string, duration time.Duration) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveRenderWorker records a render worker invocation.
func ObserveRenderWorker(outcome string, peakRSS int64) {
	if renderWorkerTotal == nil {
		return
	}
	renderWorkerTotal.WithLabelValues(outcome).Inc()
	if peakRSS > 0 {
		renderWorkerPeakRSSBytes.Set(float64(peakRSS))
	}
}

// ObserveClassifierCall records a classification collaborator call.
func ObserveClassifierCall(op, outcome string) {
	if classifierCallsTotal == nil {
		return
	}
	classifierCallsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if httpRequestSeconds == nil {
		return
	}
	httpRequestSeconds.WithLabelValues(method, route, strconv.Itoa(status)).
		Observe(duration.Seconds())
}

// ObserveRateLimitDelay records a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
