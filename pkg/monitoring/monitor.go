package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 阅卷管线指标
	SubmissionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_submissions_accepted_total",
			Help: "Total number of accepted exam submissions",
		},
	)

	SubmissionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_submissions_rejected_total",
			Help: "Total number of rejected exam submissions by reason",
		},
		[]string{"reason"},
	)

	GradingJobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_jobs_processed_total",
			Help: "Total number of grading jobs by outcome",
		},
		[]string{"outcome"}, // graded, needs_review, retried
	)

	GradingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grading_job_duration_seconds",
			Help:    "Duration of a single grading job",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grading_queue_depth",
			Help: "Number of queue items by state",
		},
		[]string{"state"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SubmissionsAccepted)
	prometheus.MustRegister(SubmissionsRejected)
	prometheus.MustRegister(GradingJobsProcessed)
	prometheus.MustRegister(GradingDuration)
	prometheus.MustRegister(QueueDepth)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
