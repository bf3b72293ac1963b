// Package store contains the database layer for mosaic.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SimulationRun is one scheduler run. A run with a start time and no end
// time either is still running or ended in a fatal error.
type SimulationRun struct {
	ID             int64
	Name           string
	ServerNumber   int
	DurationString string
	StartTime      *time.Time
	EndTime        *time.Time
	Stations       []RunStation
}

// RunStation is a station that took part in a run.
type RunStation struct {
	Code int
	Kind string // "I" or "O"
}

// LogEntry is one journaled scheduler action.
type LogEntry struct {
	ID          int64
	Timestamp   time.Time
	RunID       int64
	Action      string
	StationCode *int
	BinCode     *int
}
