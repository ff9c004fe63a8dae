package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer as the global provider for the
// duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartStage_NestsUnderPipeline(t *testing.T) {
	exp := useTestTracer(t)

	ctx, pipeline := StartStage(context.Background(), "pipeline", attribute.String("mode", "push_to_talk"))
	_, transcribe := StartStage(ctx, "transcribe")
	EndSpan(transcribe, nil)
	EndSpan(pipeline, nil)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	child, parent := spans[0], spans[1]
	if child.Name != "voice.transcribe" || parent.Name != "voice.pipeline" {
		t.Fatalf("span names = %q, %q", child.Name, parent.Name)
	}
	if child.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("transcribe span is not a child of the pipeline span")
	}
	if child.SpanContext.TraceID() != parent.SpanContext.TraceID() {
		t.Error("stages of one utterance must share a trace")
	}

	attrs := attribute.NewSet(parent.Attributes...)
	if v, _ := attrs.Value(StageKey); v.AsString() != "pipeline" {
		t.Errorf("stage attribute = %q", v.AsString())
	}
	if v, _ := attrs.Value("mode"); v.AsString() != "push_to_talk" {
		t.Errorf("mode attribute = %q", v.AsString())
	}
}

func TestEndSpan(t *testing.T) {
	exp := useTestTracer(t)

	_, failed := StartStage(context.Background(), "dispatch")
	EndSpan(failed, errors.New("gateway down"))
	_, ok := StartStage(context.Background(), "play")
	EndSpan(ok, nil)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if s := spans[0]; s.Status.Code != codes.Error || s.Status.Description != "gateway down" || len(s.Events) == 0 {
		t.Errorf("failed span status = %+v events = %d", s.Status, len(s.Events))
	}
	if s := spans[1]; s.Status.Code != codes.Unset || len(s.Events) != 0 {
		t.Errorf("successful span status = %+v events = %d", s.Status, len(s.Events))
	}
}

func TestTraceID(t *testing.T) {
	useTestTracer(t)

	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID without span = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 20 {
		ctx, span := StartStage(context.Background(), "pipeline")
		id := TraceID(ctx)
		span.End()
		if len(id) != 32 {
			t.Fatalf("trace id %q has length %d", id, len(id))
		}
		if seen[id] {
			t.Fatalf("trace id %s reused across utterances", id)
		}
		seen[id] = true
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)
	buf := captureLogs(t)

	Logger(context.Background()).Info("outside")
	ctx, span := StartStage(context.Background(), "synthesize")
	defer span.End()
	Logger(ctx).Info("inside")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2:\n%s", len(lines), buf)
	}
	if strings.Contains(lines[0], "trace_id") {
		t.Errorf("line without span has trace_id: %s", lines[0])
	}
	if !strings.Contains(lines[1], "trace_id="+TraceID(ctx)) || !strings.Contains(lines[1], "span_id=") {
		t.Errorf("line inside span lacks ids: %s", lines[1])
	}
}
