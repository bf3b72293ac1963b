// Package report derives station bin-presentation rates from a run's
// action log.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mosaic/internal/simulation"
	"mosaic/internal/store"
	"mosaic/pkg/api"
)

// ActionBinStored is the journal action counted as one bin presentation.
const ActionBinStored = simulation.ActionBinStored

// KindUnknown marks stations that appear in the log but were not persisted
// with the run.
const KindUnknown = "unknown"

// ErrNotStarted is returned for a run with neither a start time nor any log.
var ErrNotStarted = errors.New("run has not started")

// pageSize is the number of log entries fetched per query.
const pageSize = 10000

// Source reads a run and its journal.
type Source interface {
	GetRun(ctx context.Context, id int64) (*store.SimulationRun, error)
	GetLogs(ctx context.Context, runID, afterID int64, limit int) ([]store.LogEntry, error)
}

// Generate loads run runID with its full log and summarises it.
func Generate(ctx context.Context, src Source, runID int64, normalOnly bool) (*api.SummaryResponse, error) {
	run, err := src.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var logs []store.LogEntry
	var after int64
	for {
		page, err := src.GetLogs(ctx, runID, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load logs of run %d: %w", runID, err)
		}
		logs = append(logs, page...)
		if len(page) < pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	return Summarize(run, logs, normalOnly)
}

// Summarize computes the per-station rate of stored bins over the run span,
// or over the normal-operation windows of its timeline when normalOnly is
// set. logs must be ordered by timestamp.
func Summarize(run *store.SimulationRun, logs []store.LogEntry, normalOnly bool) (*api.SummaryResponse, error) {
	start, end, err := span(run, logs)
	if err != nil {
		return nil, err
	}

	var windows []window
	duration := end.Sub(start)
	if normalOnly {
		timeline, err := simulation.ParseTimeline(run.DurationString)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", run.ID, err)
		}
		windows, duration = normalWindows(timeline, start, end)
	}

	counts := make(map[int]int)
	for _, l := range logs {
		if l.Action != ActionBinStored || l.StationCode == nil {
			continue
		}
		if normalOnly && !within(windows, l.Timestamp) {
			continue
		}
		counts[*l.StationCode]++
	}

	kinds := make(map[int]string, len(run.Stations))
	for _, st := range run.Stations {
		kinds[st.Code] = st.Kind
		if _, ok := counts[st.Code]; !ok {
			counts[st.Code] = 0
		}
	}

	hours := duration.Hours()
	out := &api.SummaryResponse{
		RunID:         run.ID,
		Name:          run.Name,
		NormalOnly:    normalOnly,
		DurationHours: hours,
		Stations:      make([]api.StationRate, 0, len(counts)),
	}

	for code, n := range counts {
		kind, ok := kinds[code]
		if !ok {
			kind = KindUnknown
		}
		rate := 0.0
		if hours > 0 {
			rate = float64(n) / hours
		}
		out.Stations = append(out.Stations, api.StationRate{
			StationCode: code,
			Kind:        kind,
			BinsStored:  n,
			BinsPerHour: rate,
		})

		switch simulation.StationKind(kind) {
		case simulation.Inbound:
			out.Inbound.Stations++
			out.Inbound.TotalRate += rate
		case simulation.Outbound:
			out.Outbound.Stations++
			out.Outbound.TotalRate += rate
		}
	}
	sort.Slice(out.Stations, func(i, j int) bool {
		return out.Stations[i].StationCode < out.Stations[j].StationCode
	})

	for _, k := range []*api.KindRate{&out.Inbound, &out.Outbound} {
		if k.Stations > 0 {
			k.AverageRate = k.TotalRate / float64(k.Stations)
		}
	}
	return out, nil
}

// span is the run's start and end, falling back to the log bounds.
func span(run *store.SimulationRun, logs []store.LogEntry) (time.Time, time.Time, error) {
	var start, end time.Time
	if run.StartTime != nil {
		start = *run.StartTime
	} else if len(logs) > 0 {
		start = logs[0].Timestamp
	} else {
		return start, end, fmt.Errorf("%w: %d", ErrNotStarted, run.ID)
	}

	switch {
	case run.EndTime != nil:
		end = *run.EndTime
	case len(logs) > 0:
		end = logs[len(logs)-1].Timestamp
	default:
		end = start
	}
	if end.Before(start) {
		end = start
	}
	return start, end, nil
}

type window struct {
	start, end time.Time
}

// normalWindows places the timeline's normal operations on the wall clock
// from start and clips them to end.
func normalWindows(timeline simulation.Timeline, start, end time.Time) ([]window, time.Duration) {
	var out []window
	var total time.Duration
	for _, w := range timeline.Windows(simulation.Normal) {
		ws, we := start.Add(w.Start), start.Add(w.End)
		if we.After(end) {
			we = end
		}
		if !we.After(ws) {
			continue
		}
		out = append(out, window{start: ws, end: we})
		total += we.Sub(ws)
	}
	return out, total
}

// within reports whether t falls inside a window, bounds included.
func within(windows []window, t time.Time) bool {
	for _, w := range windows {
		if !t.Before(w.start) && !t.After(w.end) {
			return true
		}
	}
	return false
}
