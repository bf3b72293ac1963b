package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"mosaic/internal/clock"
	"mosaic/internal/store"
)

// Store is the persistence the agent needs for runs and their journal.
type Store interface {
	store.RunStore
	store.LogStore
}

// runJournal writes a run's actions to the structured log and to the
// database. Database failures are logged and never stop the run.
type runJournal struct {
	runID  int64
	store  Store
	clock  clock.Clock
	logger *slog.Logger
	closed atomic.Bool
}

func newRunJournal(runID int64, s Store, c clock.Clock, logger *slog.Logger) *runJournal {
	return &runJournal{
		runID:  runID,
		store:  s,
		clock:  c,
		logger: logger.With("run_id", runID),
	}
}

func (j *runJournal) Record(ctx context.Context, action string, station, bin *int) {
	attrs := make([]any, 0, 4)
	if station != nil {
		attrs = append(attrs, "station_code", *station)
	}
	if bin != nil {
		attrs = append(attrs, "bin_code", *bin)
	}

	if j.closed.Load() {
		j.logger.WarnContext(ctx, "Journal closed, action dropped", append(attrs, "action", action)...)
		return
	}

	j.logger.InfoContext(ctx, action, attrs...)

	entry := &store.LogEntry{
		Timestamp:   j.clock.Now(),
		RunID:       j.runID,
		Action:      action,
		StationCode: station,
		BinCode:     bin,
	}
	if err := j.store.LogAction(ctx, entry); err != nil {
		j.logger.ErrorContext(ctx, "Failed to persist action", "action", action, "error", err)
	}
}

func (j *runJournal) MarkStarted(ctx context.Context, at time.Time) error {
	return j.store.UpdateRunTimestamp(ctx, j.runID, &at, nil)
}

func (j *runJournal) MarkEnded(ctx context.Context, at time.Time) error {
	return j.store.UpdateRunTimestamp(ctx, j.runID, nil, &at)
}

// Close ends the journal. The shared connection pool stays open.
func (j *runJournal) Close() error {
	j.closed.Store(true)
	return nil
}
