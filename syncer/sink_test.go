package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"board-sync/domain"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return exporter, func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
}

func TestTraceSinkRecordsOnSpanAndLogs(t *testing.T) {
	exporter, restore := setupTestTracer(t)
	defer restore()
	logger, hook := test.NewNullLogger()

	ctx, span := otel.Tracer("test").Start(context.Background(), "sync.project")
	NewTraceSink(logger).Report(ctx, "p1", 3, &domain.ClassifiedError{Kind: domain.KindTimeout, Err: errors.New("slow")})
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status.Code)
	}
	if len(spans[0].Events) == 0 || spans[0].Events[0].Name != "exception" {
		t.Fatalf("expected recorded exception, got %+v", spans[0].Events)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "project sync failed" {
		t.Fatalf("unexpected log entry %+v", entry)
	}
	if entry.Data["error_kind"] != domain.KindTimeout || entry.Data["attempts"] != 3 {
		t.Fatalf("unexpected fields %+v", entry.Data)
	}
	if id, ok := entry.Data["trace_id"].(string); !ok || id == "" {
		t.Fatalf("expected trace id, got %#v", entry.Data["trace_id"])
	}
}

func TestSyncProjectFailureSpan(t *testing.T) {
	exporter, restore := setupTestTracer(t)
	defer restore()

	p := testProject("p1")
	p.Status = "archived"
	h := newHarness(t, nil, p)
	h.orch.sink = NewTraceSink(h.orch.logger)
	if _, err := h.orch.SyncProject(context.Background(), p); err == nil {
		t.Fatalf("expected failure")
	}
	found := false
	for _, s := range exporter.GetSpans() {
		if s.Name == "sync.project" {
			found = true
			if s.Status.Code != codes.Error {
				t.Fatalf("sync.project span status %v", s.Status.Code)
			}
		}
	}
	if !found {
		t.Fatalf("no sync.project span recorded")
	}
}
