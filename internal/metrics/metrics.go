// Package metrics は Prometheus メトリクスの定義と Gin 用ミドルウェアを提供します。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "wordnest"

	jobsSubmittedTotal       = "jobs_submitted_total"
	jobsFinishedTotal        = "jobs_finished_total"
	aiFallbacksTotal         = "ai_fallbacks_total"
	submissionsScoredTotal   = "submissions_scored_total"
	httpRequestsTotal        = "http_requests_total"
	httpRequestDurationMilli = "http_request_duration_milliseconds"

	// Labels
	typeLabel   = "type"
	statusLabel = "status"
)

var jobsSubmittedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsSubmittedTotal,
		Help:      "number of generation jobs accepted by the submitter",
	},
	[]string{typeLabel},
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsFinishedTotal,
		Help:      "number of generation jobs that reached a terminal status",
	},
	[]string{typeLabel, statusLabel},
)

var aiFallbacksMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      aiFallbacksTotal,
		Help:      "number of times a fallback value replaced an AI response",
	},
	[]string{typeLabel},
)

var submissionsScoredMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      submissionsScoredTotal,
		Help:      "number of assignment submissions scored",
	},
	[]string{typeLabel},
)

var httpRequestsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      httpRequestsTotal,
		Help:      "Number of HTTP requests partitioned by status code, method and HTTP path.",
	},
	[]string{"code", "method", "path"},
)

var httpLatencyMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      httpRequestDurationMilli,
		Help:      "Time spent on the request partitioned by status code, method and HTTP path.",
		Buckets:   []float64{50, 300, 1000, 5000, 30000},
	},
	[]string{"code", "method", "path"},
)

func IncJobsSubmitted(jobType string) {
	jobsSubmittedMetric.With(prometheus.Labels{typeLabel: jobType}).Inc()
}

func IncJobsFinished(jobType, status string) {
	jobsFinishedMetric.With(prometheus.Labels{typeLabel: jobType, statusLabel: status}).Inc()
}

func IncAIFallback(jobType string) {
	aiFallbacksMetric.With(prometheus.Labels{typeLabel: jobType}).Inc()
}

func IncSubmissionsScored(assignmentType string) {
	submissionsScoredMetric.With(prometheus.Labels{typeLabel: assignmentType}).Inc()
}

// Middleware はリクエスト数とレイテンシを記録します。
// パスはルートパターン（例: /api/jobs/:id）で集計します。
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := strconv.Itoa(c.Writer.Status())
		httpRequestsMetric.WithLabelValues(code, c.Request.Method, path).Inc()
		httpLatencyMetric.WithLabelValues(code, c.Request.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedMetric)
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(aiFallbacksMetric)
	prometheus.MustRegister(submissionsScoredMetric)
	prometheus.MustRegister(httpRequestsMetric)
	prometheus.MustRegister(httpLatencyMetric)
}
