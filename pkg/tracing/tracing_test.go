package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ServiceName != "sendctl" {
		t.Errorf("expected service name 'sendctl', got '%s'", cfg.ServiceName)
	}
	if cfg.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on disabled provider error = %v", err)
	}
}

func TestStartSpan(t *testing.T) {
	_, span := StartSpan(context.Background(), "test.operation")
	if span == nil {
		t.Fatal("expected non-nil span")
	}
	span.End()
}

func TestSpanHelpersWithoutProvider(t *testing.T) {
	ctx, span := TraceEngineCall(context.Background(), "GetParameters", SenderHandleKey.Int64(7))
	defer span.End()

	AddSpanAttributes(ctx, attribute.String("test.key", "test.value"), NativeStatusKey.Int(-3))
	RecordError(ctx, errors.New("engine rejected parameters"))
}

func TestTraceHTTPRequest(t *testing.T) {
	_, span := TraceHTTPRequest(context.Background(), "GET", "/api/v1/senders")
	if span == nil {
		t.Fatal("expected non-nil span")
	}
	span.End()
}
