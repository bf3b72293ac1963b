package observability

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestInitTracer(t *testing.T) {
	// The gRPC connection is lazy, so an unreachable collector does not
	// fail initialisation.
	for _, tt := range []struct {
		name     string
		service  string
		endpoint string
	}{
		{"unreachable endpoint", "test-service", "invalid-endpoint:9999"},
		{"local collector", "mosaic-controller", "localhost:4317"},
		{"empty service name", "", "localhost:4317"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := InitTracer(context.Background(), tt.service, tt.endpoint)
			if err != nil {
				t.Fatalf("InitTracer failed: %v", err)
			}

			_, span := otel.Tracer("test").Start(context.Background(), "probe")
			if !span.SpanContext().IsValid() {
				t.Error("expected a recording span from the installed provider")
			}
			span.End()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = shutdown(ctx)
		})
	}
}
