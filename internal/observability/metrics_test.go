package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	return rr.Body.String()
}

func initMetrics(t *testing.T) http.Handler {
	t.Helper()
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdown(ctx)
	})
	return handler
}

func TestInitMetrics(t *testing.T) {
	body := scrape(t, initMetrics(t))

	if !strings.Contains(body, "go_goroutines") {
		t.Errorf("expected runtime collector output, got:\n%s", body)
	}
}

func TestInitMetrics_Twice(t *testing.T) {
	initMetrics(t)
	initMetrics(t)
}

func TestInitMetrics_CounterAppearsInOutput(t *testing.T) {
	handler := initMetrics(t)

	counter, err := otel.Meter("test-meter").Int64Counter("mosaic.bins.stored")
	if err != nil {
		t.Fatalf("failed to create counter: %v", err)
	}
	counter.Add(context.Background(), 42)

	body := scrape(t, handler)
	if !strings.Contains(body, "mosaic_bins_stored") {
		t.Errorf("expected mosaic_bins_stored in output, got:\n%s", body)
	}
	if !strings.Contains(body, "42") {
		t.Errorf("expected value 42 in output, got:\n%s", body)
	}
}

func TestRegisterActiveRuns(t *testing.T) {
	handler := initMetrics(t)

	active := 3
	if err := RegisterActiveRuns(func() int { return active }); err != nil {
		t.Fatalf("RegisterActiveRuns failed: %v", err)
	}

	body := scrape(t, handler)
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "mosaic_runs_active") {
			if !strings.HasSuffix(line, " 3") {
				t.Errorf("unexpected gauge line: %s", line)
			}
			return
		}
	}
	t.Errorf("expected mosaic_runs_active in output, got:\n%s", body)
}
