package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"cms-publisher/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish attempt results.
const (
	ResultSucceeded       = "succeeded"
	ResultFailedTransient = "failed_transient"
	ResultFailedPermanent = "failed_permanent"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Publishing
	publishAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_attempts_total",
			Help: "Recorded publish attempts by platform, operation and result.",
		},
		[]string{"platform", "operation", "result"},
	)
	publishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publish_attempt_duration_seconds",
			Help:    "Time spent in the platform adapter per attempt (seconds).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"platform"},
	)
	credentialRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_refreshes_total",
			Help: "OAuth credential refreshes triggered by auth failures.",
		},
		[]string{"platform", "result"},
	)

	// Queue
	queueJobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_processed_total",
			Help: "Scheduled jobs moved to a terminal status.",
		},
		[]string{"status"},
	)
	queueJobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_jobs_count",
			Help: "Current count of scheduled jobs by status.",
		},
		[]string{"status"},
	)
	retriesAttempted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "publish_retries_total",
			Help: "Automatic retries of transient publish failures.",
		},
	)
	retriesExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "publish_retries_exhausted_total",
			Help: "Retries that used up the last allowed attempt.",
		},
	)

	// Events
	eventsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_events_sent_total",
			Help: "Publish outcome events handed to the event sink.",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			publishAttempts,
			publishDuration,
			credentialRefreshes,

			queueJobsProcessed,
			queueJobsByStatus,
			retriesAttempted,
			retriesExhausted,

			eventsSent,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	status := strconv.Itoa(code)
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// --- Publishing ---

// ObservePublishAttempt records one ledger write.
func ObservePublishAttempt(platform models.Platform, op models.PublishOperation, kind models.ErrorKind, d time.Duration) {
	publishAttempts.WithLabelValues(string(platform), string(op), resultLabel(kind)).Inc()
	publishDuration.WithLabelValues(string(platform)).Observe(d.Seconds())
}

func IncCredentialRefresh(platform models.Platform, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	credentialRefreshes.WithLabelValues(string(platform), result).Inc()
}

// --- Queue ---
func IncQueueJob(status models.QueueJobStatus) {
	queueJobsProcessed.WithLabelValues(string(status)).Inc()
}
func IncRetry()          { retriesAttempted.Inc() }
func IncRetryExhausted() { retriesExhausted.Inc() }

func SetQueueJobCount(status string, count int64) {
	if count < 0 {
		count = 0
	}
	queueJobsByStatus.WithLabelValues(status).Set(float64(count))
}

// --- Events ---
func IncEvent(ok bool) {
	if ok {
		eventsSent.WithLabelValues("ok").Inc()
		return
	}
	eventsSent.WithLabelValues("error").Inc()
}

func resultLabel(kind models.ErrorKind) string {
	switch kind {
	case models.ErrorKindNone:
		return ResultSucceeded
	case models.ErrorKindTransient:
		return ResultFailedTransient
	default:
		return ResultFailedPermanent
	}
}
