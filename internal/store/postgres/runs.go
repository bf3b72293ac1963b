package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mosaic/internal/store"
)

func (s *Store) UpsertRun(ctx context.Context, run *store.SimulationRun) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO simulation_runs (id, name, server_number, duration_string)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			server_number = EXCLUDED.server_number,
			duration_string = EXCLUDED.duration_string
	`
	if _, err := tx.ExecContext(ctx, query, run.ID, run.Name, run.ServerNumber, run.DurationString); err != nil {
		return fmt.Errorf("failed to upsert run %d: %w", run.ID, err)
	}

	if err := replaceStations(ctx, tx, run); err != nil {
		return err
	}

	return tx.Commit()
}

// replaceStations rewrites the station list of a run.
func replaceStations(ctx context.Context, q store.DBTransaction, run *store.SimulationRun) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM run_stations WHERE simulation_run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("failed to clear stations of run %d: %w", run.ID, err)
	}

	for _, st := range run.Stations {
		_, err := q.ExecContext(ctx,
			`INSERT INTO run_stations (simulation_run_id, station_code, kind) VALUES ($1, $2, $3)`,
			run.ID, st.Code, st.Kind,
		)
		if err != nil {
			return fmt.Errorf("failed to add station %d to run %d: %w", st.Code, run.ID, err)
		}
	}
	return nil
}

func (s *Store) UpdateRunTimestamp(ctx context.Context, runID int64, start, end *time.Time) error {
	if start == nil && end == nil {
		return nil
	}

	query := `
		UPDATE simulation_runs
		SET start_timestamp = COALESCE($2::timestamptz, start_timestamp),
			end_timestamp = COALESCE($3::timestamptz, end_timestamp)
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, runID, start, end)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("run %d: %w", runID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id int64) (*store.SimulationRun, error) {
	query := `
		SELECT id, name, server_number, duration_string, start_timestamp, end_timestamp
		FROM simulation_runs
		WHERE id = $1
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT station_code, kind FROM run_stations WHERE simulation_run_id = $1 ORDER BY station_code`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st store.RunStation
		if err := rows.Scan(&st.Code, &st.Kind); err != nil {
			return nil, err
		}
		run.Stations = append(run.Stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]store.SimulationRun, error) {
	query := `
		SELECT id, name, server_number, duration_string, start_timestamp, end_timestamp
		FROM simulation_runs
		ORDER BY start_timestamp DESC NULLS LAST, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []store.SimulationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*store.SimulationRun, error) {
	var (
		run        store.SimulationRun
		start, end sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Name, &run.ServerNumber, &run.DurationString, &start, &end); err != nil {
		return nil, err
	}
	if start.Valid {
		run.StartTime = &start.Time
	}
	if end.Valid {
		run.EndTime = &end.Time
	}
	return &run, nil
}
