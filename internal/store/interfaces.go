package store

import (
	"context"
	"database/sql"
	"time"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// RunStore handles the persistence of simulation runs.
type RunStore interface {
	// UpsertRun creates the run or overwrites its name, server and timeline.
	// The station list is replaced in the same transaction. Timestamps are
	// left untouched.
	UpsertRun(ctx context.Context, run *SimulationRun) error

	// UpdateRunTimestamp sets whichever of start and end is non-nil.
	UpdateRunTimestamp(ctx context.Context, runID int64, start, end *time.Time) error

	// GetRun returns a run with its stations, or ErrNotFound.
	GetRun(ctx context.Context, id int64) (*SimulationRun, error)

	// ListRuns returns runs, most recently started first.
	ListRuns(ctx context.Context, limit, offset int) ([]SimulationRun, error)
}

// LogStore handles the action journal of runs.
type LogStore interface {
	// LogAction appends an entry and sets its ID.
	LogAction(ctx context.Context, entry *LogEntry) error

	// GetLogs returns entries of a run with ID > afterID, oldest first.
	GetLogs(ctx context.Context, runID, afterID int64, limit int) ([]LogEntry, error)
}
