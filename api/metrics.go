package api

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const metricsContextKey = "sync.metrics"

type requestMetrics struct {
	logger          *log.Logger
	start           time.Time
	authDuration    time.Duration
	enqueueDuration time.Duration
	jobType         string
	projectID       string
	errorStage      string
}

func newRequestMetrics(logger *log.Logger) *requestMetrics {
	return &requestMetrics{logger: logger, start: time.Now()}
}

// RequestMetrics logs one line per request with timings and the job it queued.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m := newRequestMetrics(logger)
			c.Set(metricsContextKey, m)
			err := next(c)
			m.Log(c.Path(), c.Response().Status, err)
			return err
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.authDuration = d
}

func (m *requestMetrics) ObserveEnqueue(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.enqueueDuration = d
}

func (m *requestMetrics) SetJob(jobType, projectID string) {
	if m == nil {
		return
	}
	m.jobType, m.projectID = jobType, projectID
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) Log(route string, status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":    route,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.enqueueDuration > 0 {
		fields["enqueue_ms"] = durationToMillis(m.enqueueDuration)
	}
	if m.jobType != "" {
		fields["job_type"] = m.jobType
	}
	if m.projectID != "" {
		fields["project"] = m.projectID
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("sync.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
