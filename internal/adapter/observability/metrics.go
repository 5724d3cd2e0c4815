package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	MatchJobsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "match_jobs_started_total",
			Help: "Total number of match jobs started",
		},
	)
	MatchJobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "match_jobs_running",
			Help: "Number of match jobs currently running",
		},
	)
	MatchJobsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "match_jobs_completed_total",
			Help: "Total number of match jobs completed",
		},
	)
	MatchJobsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "match_jobs_failed_total",
			Help: "Total number of match jobs failed",
		},
	)
	MatchPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "match_phase_duration_seconds",
			Help:    "Duration of each pipeline phase in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"phase"},
	)

	MatchScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "match_result_score",
			Help:    "Distribution of emitted match scores ([0,100])",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Number of active websocket connections",
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(MatchJobsStartedTotal)
	prometheus.MustRegister(MatchJobsRunning)
	prometheus.MustRegister(MatchJobsCompletedTotal)
	prometheus.MustRegister(MatchJobsFailedTotal)
	prometheus.MustRegister(MatchPhaseDuration)
	prometheus.MustRegister(MatchScoreHistogram)
	prometheus.MustRegister(WSConnections)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

func StartJob() {
	MatchJobsStartedTotal.Inc()
	MatchJobsRunning.Inc()
}

func CompleteJob() {
	MatchJobsRunning.Dec()
	MatchJobsCompletedTotal.Inc()
}

func FailJob() {
	MatchJobsRunning.Dec()
	MatchJobsFailedTotal.Inc()
}

// ObservePhase records how long a single pipeline phase took.
func ObservePhase(phase string, d time.Duration) {
	MatchPhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveScores records emitted match scores for distribution tracking.
func ObserveScores(scores []int) {
	for _, s := range scores {
		if s >= 0 && s <= 100 {
			MatchScoreHistogram.Observe(float64(s))
		}
	}
}
