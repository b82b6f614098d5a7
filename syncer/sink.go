package syncer

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"board-sync/domain"
)

// ErrorSink receives sync failures that exhausted their retries.
type ErrorSink interface {
	Report(ctx context.Context, projectID string, attempts int, err *domain.ClassifiedError)
}

// TraceSink records failures on the active span and logs them.
type TraceSink struct {
	logger *log.Logger
}

func NewTraceSink(logger *log.Logger) *TraceSink {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TraceSink{logger: logger}
}

func (s *TraceSink) Report(ctx context.Context, projectID string, attempts int, err *domain.ClassifiedError) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(
		attribute.String("sync.error_kind", string(err.Kind)),
		attribute.Int("sync.attempts", attempts),
	))
	span.SetStatus(codes.Error, err.Error())

	fields := log.Fields{
		"project":    projectID,
		"error_kind": err.Kind,
		"attempts":   attempts,
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	s.logger.WithFields(fields).WithError(err.Err).Error("project sync failed")
}
