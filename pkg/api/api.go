// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// Parameters are the demand parameters of a simulation run.
// Times are in seconds.
type Parameters struct {
	InboundTime           int       `json:"inbound_time" yaml:"inbound_time" validate:"gte=0"`
	OutboundTime          int       `json:"outbound_time" yaml:"outbound_time" validate:"gte=0"`
	InboundBinsPerOrder   int       `json:"inbound_bins_per_order" yaml:"inbound_bins_per_order" validate:"gte=0"`
	OutboundBinsPerOrder  int       `json:"outbound_bins_per_order" yaml:"outbound_bins_per_order" validate:"gte=0"`
	InboundOrdersPerHour  int       `json:"inbound_orders_per_hour" yaml:"inbound_orders_per_hour" validate:"gte=0"`
	OutboundOrdersPerHour int       `json:"outbound_orders_per_hour" yaml:"outbound_orders_per_hour" validate:"gte=0"`
	ParetoProbabilities   []float64 `json:"pareto_probabilities" yaml:"pareto_probabilities" validate:"required,min=1,dive,gte=0"`
}

// Configuration identifies a run and its timeline.
type Configuration struct {
	ID           int64  `json:"id" yaml:"id" validate:"required,gt=0"`
	Name         string `json:"name" yaml:"name" validate:"required"`
	ServerNumber int    `json:"server_number" yaml:"server_number" validate:"required,gt=0"`
	// DurationString is a ';' separated list of "N<seconds>" and "AO<seconds>".
	DurationString string `json:"duration_string" yaml:"duration_string" validate:"required"`
}

// Station is a pick/drop point. Type is "I" (inbound) or "O" (outbound).
type Station struct {
	Code int    `json:"code" yaml:"code"`
	Type string `json:"type" yaml:"type" validate:"required"`
}

// StationGroup lists the stations that share one order.
type StationGroup struct {
	Group        int   `json:"group" yaml:"group"`
	StationCodes []int `json:"station_codes" yaml:"station_codes" validate:"required,min=1"`
}

// JobsCreationRequest is the request body for POST /jobs/create.
type JobsCreationRequest struct {
	Parameters    Parameters     `json:"parameters" yaml:"parameters" validate:"required"`
	Configuration Configuration  `json:"configuration" yaml:"configuration" validate:"required"`
	Stations      []Station      `json:"stations" yaml:"stations" validate:"required,min=1,dive"`
	StationGroups []StationGroup `json:"station_groups" yaml:"station_groups" validate:"required,min=1,dive"`
}

// CreateRunResponse is returned once a run has been started.
type CreateRunResponse struct {
	Message string `json:"message"`
	RunID   int64  `json:"run_id"`
}

// MessageResponse carries a human-readable acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// TimeResponse is the response body for GET /time.
type TimeResponse struct {
	CurrentTime string `json:"current_time"`
}

// Run states reported by the controller.
const (
	RunStateRunning   = "running"
	RunStateCompleted = "completed"
	RunStateFailed    = "failed"
	RunStateUnknown   = "unknown"
)

// StatusResponse describes a run held by the controller.
type StatusResponse struct {
	RunID          int64      `json:"run_id"`
	Attempt        string     `json:"attempt,omitempty"`
	SimulationName string     `json:"simulation_name"`
	ServerNumber   int        `json:"server_number"`
	StartTime      *time.Time `json:"start_time"`
	StopRequested  bool       `json:"stop_requested"`
	StopTime       *time.Time `json:"stop_time"`
	State          string     `json:"state"`
	Error          string     `json:"error,omitempty"`
}

// RunResponse is a persisted run record.
type RunResponse struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	ServerNumber   int        `json:"server_number"`
	DurationString string     `json:"duration_string"`
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	// State is "completed" when an end time exists, "running" or "failed"
	// otherwise, depending on whether the controller still holds the run.
	State string `json:"state"`
}

// ListRunsResponse is the response body for GET /runs.
type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

// LogEntry represents a single journaled action.
type LogEntry struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	StationCode *int      `json:"station_code,omitempty"`
	BinCode     *int      `json:"bin_code,omitempty"`
}

// GetLogsResponse is the response body for fetching logs.
type GetLogsResponse struct {
	Logs []LogEntry `json:"logs"`
}

// StationRate is the bin presentation rate of one station.
type StationRate struct {
	StationCode int     `json:"station_code"`
	Kind        string  `json:"kind"`
	BinsStored  int     `json:"bins_stored"`
	BinsPerHour float64 `json:"bins_per_hour"`
}

// KindRate aggregates the rates of all stations of one kind.
type KindRate struct {
	Stations    int     `json:"stations"`
	AverageRate float64 `json:"average_rate"`
	TotalRate   float64 `json:"total_rate"`
}

// SummaryResponse is the response body for GET /runs/{id}/summary.
type SummaryResponse struct {
	RunID         int64         `json:"run_id"`
	Name          string        `json:"name"`
	NormalOnly    bool          `json:"normal_only"`
	DurationHours float64       `json:"duration_hours"`
	Stations      []StationRate `json:"stations"`
	Inbound       KindRate      `json:"inbound"`
	Outbound      KindRate      `json:"outbound"`
}

// ProbeResponse is the health of one external service.
type ProbeResponse struct {
	Reachable bool   `json:"reachable"`
	Active    bool   `json:"active"`
	Error     string `json:"error,omitempty"`
}

// BackendHealth reports the controller's own view of a server.
type BackendHealth struct {
	SimulationRunning bool   `json:"simulation_running"`
	SimulationName    string `json:"simulation_name,omitempty"`
	RunID             int64  `json:"run_id,omitempty"`
}

// SystemHealthResponse is the response body for GET /system/health.
type SystemHealthResponse struct {
	ServerNumber   int           `json:"server_number"`
	Healthy        bool          `json:"healthy"`
	StorageManager ProbeResponse `json:"storage_manager"`
	TrafficControl ProbeResponse `json:"traffic_control"`
	Backend        BackendHealth `json:"backend"`
}

// ParetoResponse is the response body for GET /pareto.
type ParetoResponse struct {
	Layers        int       `json:"layers"`
	P             float64   `json:"p"`
	Q             float64   `json:"q"`
	Alpha         float64   `json:"alpha"`
	X0            float64   `json:"x0"`
	TopLayers     int       `json:"top_layers"`
	TopShare      float64   `json:"top_share"`
	Probabilities []float64 `json:"probabilities"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
