package handlers

import (
	"context"
	"time"

	"mosaic/internal/gateway"
	"mosaic/internal/simulation"
	"mosaic/internal/store"
	"mosaic/internal/worker"
)

// Mock Store
type mockStore struct {
	pingErr error

	runs       map[int64]*store.SimulationRun
	getRunErr  error
	listRuns   []store.SimulationRun
	listErr    error
	logs       []store.LogEntry
	getLogsErr error

	// Spies (to verify arguments passed by handlers)
	capturedAfterID int64
	capturedLimit   int
	capturedOffset  int
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) UpsertRun(ctx context.Context, run *store.SimulationRun) error { return nil }

func (m *mockStore) UpdateRunTimestamp(ctx context.Context, runID int64, start, end *time.Time) error {
	return nil
}

func (m *mockStore) GetRun(ctx context.Context, id int64) (*store.SimulationRun, error) {
	if m.getRunErr != nil {
		return nil, m.getRunErr
	}
	run, ok := m.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return run, nil
}

func (m *mockStore) ListRuns(ctx context.Context, limit, offset int) ([]store.SimulationRun, error) {
	m.capturedLimit = limit
	m.capturedOffset = offset
	return m.listRuns, m.listErr
}

func (m *mockStore) LogAction(ctx context.Context, entry *store.LogEntry) error { return nil }

func (m *mockStore) GetLogs(ctx context.Context, runID, afterID int64, limit int) ([]store.LogEntry, error) {
	m.capturedAfterID = afterID
	m.capturedLimit = limit
	if m.getLogsErr != nil {
		return nil, m.getLogsErr
	}
	var out []store.LogEntry
	for _, l := range m.logs {
		if l.ID > afterID && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

// Mock Runner
type mockRunner struct {
	startErr  error
	started   []*simulation.Plan
	stopErr   error
	stopped   []*int64
	statuses  map[int64]worker.Status
	latest    *worker.Status
	active    map[int]worker.Status
	backends  map[int]*worker.Backend
	statusErr error
}

func (m *mockRunner) Start(ctx context.Context, plan *simulation.Plan) (*worker.Run, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = append(m.started, plan)
	return nil, nil
}

func (m *mockRunner) Stop(runID *int64) (worker.Status, error) {
	m.stopped = append(m.stopped, runID)
	if m.stopErr != nil {
		return worker.Status{}, m.stopErr
	}
	return worker.Status{StopRequested: true}, nil
}

func (m *mockRunner) Status(runID *int64) (worker.Status, error) {
	if runID == nil {
		if m.latest == nil {
			return worker.Status{}, worker.ErrRunNotFound
		}
		return *m.latest, nil
	}
	status, ok := m.statuses[*runID]
	if !ok {
		return worker.Status{}, worker.ErrRunNotFound
	}
	return status, nil
}

func (m *mockRunner) ActiveRun(server int) (worker.Status, bool) {
	status, ok := m.active[server]
	return status, ok
}

func (m *mockRunner) Backend(server int) (*worker.Backend, error) {
	b, ok := m.backends[server]
	if !ok {
		return nil, worker.ErrUnknownServer
	}
	return b, nil
}

// Mock Prober
type mockProber struct {
	sm, tc   gateway.Probe
	zoneSeen string
}

func (m *mockProber) StorageManager(ctx context.Context, sm *gateway.StorageManager, zone string) gateway.Probe {
	m.zoneSeen = zone
	return m.sm
}

func (m *mockProber) TrafficControl(ctx context.Context, tc *gateway.TrafficControl) gateway.Probe {
	return m.tc
}

func ptr[T any](v T) *T { return &v }
