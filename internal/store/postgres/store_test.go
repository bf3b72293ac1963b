package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"mosaic/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestUpsertRun(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	run := &store.SimulationRun{
		ID:             42,
		Name:           "peak hour",
		ServerNumber:   2,
		DurationString: "N600;AO300",
		Stations: []store.RunStation{
			{Code: 1, Kind: "I"},
			{Code: 5, Kind: "O"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO simulation_runs .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(int64(42), "peak hour", 2, "N600;AO300").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM run_stations`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO run_stations`).
		WithArgs(int64(42), 1, "I").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO run_stations`).
		WithArgs(int64(42), 5, "O").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.UpsertRun(context.Background(), run); err != nil {
		t.Fatalf("UpsertRun failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertRun_RollbackOnStationFailure(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	run := &store.SimulationRun{ID: 1, Name: "r", ServerNumber: 1, Stations: []store.RunStation{{Code: 1, Kind: "I"}}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO simulation_runs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM run_stations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO run_stations`).WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	if err := s.UpsertRun(context.Background(), run); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateRunTimestamp(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	end := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(`UPDATE simulation_runs SET start_timestamp = COALESCE`).
		WithArgs(int64(7), nil, end).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateRunTimestamp(context.Background(), 7, nil, &end); err != nil {
		t.Fatalf("UpdateRunTimestamp failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateRunTimestamp_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	start := time.Now()
	mock.ExpectExec(`UPDATE simulation_runs`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateRunTimestamp(context.Background(), 99, &start, nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRunTimestamp_NothingToSet(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	if err := s.UpdateRunTimestamp(context.Background(), 1, nil, nil); err != nil {
		t.Fatalf("UpdateRunTimestamp failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected queries: %v", err)
	}
}

func TestGetRun(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name, server_number, duration_string, start_timestamp, end_timestamp FROM simulation_runs WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "server_number", "duration_string", "start_timestamp", "end_timestamp"}).
			AddRow(3, "crashed", 1, "N100", start, nil))
	mock.ExpectQuery(`SELECT station_code, kind FROM run_stations`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"station_code", "kind"}).
			AddRow(1, "I").
			AddRow(2, "O"))

	run, err := s.GetRun(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}

	if run.StartTime == nil || !run.StartTime.Equal(start) {
		t.Errorf("expected start %v, got %v", start, run.StartTime)
	}
	if run.EndTime != nil {
		t.Errorf("expected no end time, got %v", run.EndTime)
	}
	if len(run.Stations) != 2 || run.Stations[1].Kind != "O" {
		t.Errorf("unexpected stations: %+v", run.Stations)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT id, name`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "server_number", "duration_string", "start_timestamp", "end_timestamp"}))

	_, err := s.GetRun(context.Background(), 5)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, name, server_number, duration_string, start_timestamp, end_timestamp FROM simulation_runs ORDER BY start_timestamp DESC`).
		WithArgs(20, 40).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "server_number", "duration_string", "start_timestamp", "end_timestamp"}).
			AddRow(2, "second", 1, "N10", now, now.Add(10*time.Second)).
			AddRow(1, "first", 1, "N10", nil, nil))

	runs, err := s.ListRuns(context.Background(), 20, 40)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}

	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].EndTime == nil {
		t.Error("expected end time on first run")
	}
	if runs[1].StartTime != nil {
		t.Error("expected no start time on second run")
	}
}

func TestLogAction(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ts := time.Date(2026, 5, 1, 9, 0, 1, 0, time.UTC)
	station, bin := 4, 1234
	entry := &store.LogEntry{Timestamp: ts, RunID: 9, Action: "Bin stored", StationCode: &station, BinCode: &bin}

	mock.ExpectQuery(`INSERT INTO logs`).
		WithArgs(ts, int64(9), "Bin stored", 4, 1234).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))

	if err := s.LogAction(context.Background(), entry); err != nil {
		t.Fatalf("LogAction failed: %v", err)
	}
	if entry.ID != 77 {
		t.Errorf("expected ID 77, got %d", entry.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLogAction_NullCodes(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ts := time.Now()
	mock.ExpectQuery(`INSERT INTO logs`).
		WithArgs(ts, int64(9), "Simulation starts", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	if err := s.LogAction(context.Background(), &store.LogEntry{Timestamp: ts, RunID: 9, Action: "Simulation starts"}); err != nil {
		t.Fatalf("LogAction failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetLogs(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	rows := sqlmock.NewRows([]string{"id", "timestamp", "simulation_run_id", "action", "station_code", "bin_code"}).
		AddRow(101, time.Now().Add(-2*time.Second), 9, "Simulation starts", nil, nil).
		AddRow(102, time.Now().Add(-1*time.Second), 9, "Bin stored", 3, 555)

	mock.ExpectQuery(`SELECT id, timestamp, simulation_run_id, action, station_code, bin_code FROM logs`).
		WithArgs(int64(9), int64(100), 50).
		WillReturnRows(rows)

	logs, err := s.GetLogs(context.Background(), 9, 100, 50)
	if err != nil {
		t.Fatalf("GetLogs failed: %v", err)
	}

	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].StationCode != nil {
		t.Errorf("expected nil station on first log, got %d", *logs[0].StationCode)
	}
	if logs[1].BinCode == nil || *logs[1].BinCode != 555 {
		t.Errorf("expected bin 555 on second log, got %v", logs[1].BinCode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	s := &Store{db: db}
	defer s.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	if err := s.Ping(context.Background()); err == nil {
		t.Error("expected ping error")
	}
}
