package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mosaic/pkg/api"

	"github.com/spf13/viper"
)

const requestYAML = `configuration:
  id: 42
  name: peak
  server_number: 1
  duration_string: N100;AO50
parameters:
  inbound_time: 10
  outbound_time: 20
  inbound_bins_per_order: 7
  outbound_bins_per_order: 4
  inbound_orders_per_hour: 30
  outbound_orders_per_hour: 60
  pareto_probabilities: [0.5, 0.3, 0.2]
stations:
  - {code: 1, type: I}
  - {code: 2, type: O}
station_groups:
  - {group: 1, station_codes: [1]}
  - {group: 2, station_codes: [2]}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestStartCommand_YAML(t *testing.T) {
	resetViper()

	var got api.JobsCreationRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs/create" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.CreateRunResponse{Message: "Job creation process has been started", RunID: 42})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	path := writeFile(t, "run.yaml", requestYAML)
	output := execute(t, "start", "--file", path)

	if !strings.Contains(output, "Run ID: 42") {
		t.Errorf("expected run id in output, got: %s", output)
	}
	if got.Configuration.DurationString != "N100;AO50" {
		t.Errorf("expected duration string to be sent, got: %q", got.Configuration.DurationString)
	}
	if len(got.Stations) != 2 || got.Stations[1].Type != "O" {
		t.Errorf("unexpected stations: %+v", got.Stations)
	}
	if len(got.Parameters.ParetoProbabilities) != 3 {
		t.Errorf("unexpected pareto probabilities: %v", got.Parameters.ParetoProbabilities)
	}
}

func TestStartCommand_JSONWithoutToken(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("expected no Authorization header, got: %s", auth)
		}
		var req api.JobsCreationRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.CreateRunResponse{Message: "started", RunID: req.Configuration.ID})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	path := writeFile(t, "run.json", `{"configuration": {"id": 7, "name": "json-run", "server_number": 1, "duration_string": "N10"}}`)
	output := execute(t, "start", "-f", path)

	if !strings.Contains(output, "Run ID: 7") || !strings.Contains(output, "json-run") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestStartCommand_Conflict(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Simulation already running", Code: "409"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	path := writeFile(t, "run.yaml", requestYAML)
	output := execute(t, "start", "--file", path)

	if !strings.Contains(output, "Error (409): Simulation already running") {
		t.Errorf("expected conflict message, got: %s", output)
	}
}

func TestStartCommand_Errors(t *testing.T) {
	resetViper()

	output := execute(t, "start")
	if !strings.Contains(output, "--file is required") {
		t.Errorf("expected missing file message, got: %s", output)
	}

	output = execute(t, "start", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	if !strings.Contains(output, "failed to read request file") {
		t.Errorf("expected read error, got: %s", output)
	}

	path := writeFile(t, "bad.yaml", "configuration: [unterminated")
	output = execute(t, "start", "--file", path)
	if !strings.Contains(output, "failed to parse") {
		t.Errorf("expected parse error, got: %s", output)
	}
}

func TestStopCommand(t *testing.T) {
	resetViper()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs/stop" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(api.MessageResponse{Message: "Job creation process has been stopped"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "stop")
	if gotQuery != "" {
		t.Errorf("expected no query for latest run, got: %s", gotQuery)
	}
	if !strings.Contains(output, "has been stopped") {
		t.Errorf("unexpected output: %s", output)
	}

	execute(t, "stop", "--run-id", "42")
	if gotQuery != "run_id=42" {
		t.Errorf("expected run_id=42, got: %s", gotQuery)
	}
}

func TestStopCommand_NoActiveRun(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "No active simulation", Code: "404"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "stop")
	if !strings.Contains(output, "Error (404): No active simulation") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestStatusCommand(t *testing.T) {
	resetViper()

	start := time.Now().Add(-90 * time.Second)
	stop := start.Add(75 * time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("run_id") != "42" {
			t.Errorf("expected run_id=42, got: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(api.StatusResponse{
			RunID:          42,
			SimulationName: "peak",
			ServerNumber:   1,
			StartTime:      &start,
			StopTime:       &stop,
			StopRequested:  true,
			State:          api.RunStateFailed,
			Error:          "inventory exhausted",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "status", "--run-id", "42")

	for _, want := range []string{"42", "peak", api.RunStateFailed, "requested", "inventory exhausted", "1m 15s"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestRunsCommand(t *testing.T) {
	resetViper()

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(api.ListRunsResponse{Runs: []api.RunResponse{
			{ID: 42, Name: "peak", ServerNumber: 1, DurationString: "N100", StartTime: &start, State: api.RunStateRunning},
		}})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "runs", "--limit", "5")

	for _, want := range []string{"ID", "peak", "running", "2026-03-01T08:00:00Z"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestRunsCommand_Empty(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.ListRunsResponse{Runs: []api.RunResponse{}})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "runs")
	if !strings.Contains(output, "No runs found.") {
		t.Errorf("unexpected output: %s", output)
	}
}
