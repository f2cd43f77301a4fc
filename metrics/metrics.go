package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Business metrics
	StepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_step_transitions_total",
			Help: "Step transitions by kind (completed, skipped, postponed)",
		},
		[]string{"transition"},
	)
	Enrollments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_enrollment_changes_total",
			Help: "Enrollment lifecycle changes by kind",
		},
		[]string{"change"},
	)
	TouchesLogged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "touches_logged_total",
			Help: "Touches logged by touch type",
		},
		[]string{"touch_type"},
	)
	HistoryEventFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_history_event_failures_total",
		Help: "History events that could not be recorded after a successful mutation",
	})
)

// RecordStepTransition counts a step transition
func RecordStepTransition(transition string) {
	StepTransitions.WithLabelValues(transition).Inc()
}

// RecordEnrollmentChange counts an enrollment lifecycle change
func RecordEnrollmentChange(change string) {
	Enrollments.WithLabelValues(change).Inc()
}

// RecordTouch counts a logged touch
func RecordTouch(touchType string) {
	TouchesLogged.WithLabelValues(touchType).Inc()
}

// Middleware records request count and latency per matched route
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		HTTPRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}
