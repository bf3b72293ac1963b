package postgres

import (
	"context"
	"database/sql"

	"mosaic/internal/store"
)

func (s *Store) LogAction(ctx context.Context, entry *store.LogEntry) error {
	query := `
		INSERT INTO logs (timestamp, simulation_run_id, action, station_code, bin_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return s.db.QueryRowContext(ctx, query,
		entry.Timestamp,
		entry.RunID,
		entry.Action,
		entry.StationCode,
		entry.BinCode,
	).Scan(&entry.ID)
}

func (s *Store) GetLogs(ctx context.Context, runID, afterID int64, limit int) ([]store.LogEntry, error) {
	query := `
		SELECT id, timestamp, simulation_run_id, action, station_code, bin_code
		FROM logs
		WHERE simulation_run_id = $1 AND id > $2
		ORDER BY timestamp ASC, id ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, runID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []store.LogEntry
	for rows.Next() {
		var (
			entry        store.LogEntry
			station, bin sql.NullInt64
		)
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.RunID, &entry.Action, &station, &bin); err != nil {
			return nil, err
		}
		entry.StationCode = nullInt(station)
		entry.BinCode = nullInt(bin)
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
