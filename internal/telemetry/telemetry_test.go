package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New failed for disabled telemetry: %v", err)
	}
	if tel.Tracer() == nil {
		t.Fatal("Expected a no-op tracer when disabled")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown of disabled telemetry failed: %v", err)
	}
}

func TestNew_Enabled(t *testing.T) {
	tel, err := New(Config{
		Enabled: true,
		Service: "ecogateway-test",
		Version: "1.0.0",
		Tracing: TracingConfig{
			Enabled:    true,
			Endpoint:   "localhost:4318",
			Insecure:   true,
			SampleRate: 0.5,
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, span := tel.Tracer().Start(context.Background(), "test")
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing listens on the endpoint; a cancelled flush is acceptable.
	_ = tel.Shutdown(ctx)
}

func TestClientSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	req := httptest.NewRequest(http.MethodGet, "https://genesis.example.com/health", nil)

	_, span := StartClientSpan(context.Background(), tracer, "health genesis", req)
	EndClientSpan(span, http.StatusOK, nil)

	_, span = StartClientSpan(context.Background(), tracer, "fetch genesis", req)
	EndClientSpan(span, 0, errors.New("connection refused"))

	_, span = StartClientSpan(context.Background(), tracer, "fetch genesis", req)
	EndClientSpan(span, http.StatusBadGateway, nil)

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 ended spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || len(spans[1].Events()) == 0 {
		t.Errorf("expected error status with event, got %v", spans[1].Status())
	}
	if spans[2].Status().Code != codes.Error {
		t.Errorf("expected error status for 502, got %v", spans[2].Status())
	}
}
