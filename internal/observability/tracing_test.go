package observability

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	if cfg.ServiceName != "promptgen" {
		t.Errorf("expected promptgen, got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
	if cfg.OTLPEndpoint != "" {
		t.Error("tracing should be disabled by default")
	}
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	tp, err := InitTracing(context.Background(), &TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected a tracer")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestInitTracing_NilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestSpanHelpers(t *testing.T) {
	ctx, span := StartOperationSpan(context.Background(), "embed", "codex-agent", "abc")
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}
	RecordCounts(span, map[string]int{"embedded": 2, "skipped": 1})
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	_, client := StartClientSpan(ctx, "index", "query")
	client.End()
}
