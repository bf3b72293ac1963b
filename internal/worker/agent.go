// Package worker runs scheduler runs in the background and keeps track of
// them for the control surface.
package worker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"mosaic/internal/advanceorder"
	"mosaic/internal/clock"
	"mosaic/internal/gateway"
	"mosaic/internal/inventory"
	"mosaic/internal/logger"
	"mosaic/internal/simulation"
	"mosaic/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrRunNotFound is returned when no run matches a stop or status request.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunActive is returned when a run with the same ID is still running.
	ErrRunActive = errors.New("run is already active")
	// ErrServerBusy is returned when another run occupies the server.
	ErrServerBusy = errors.New("server is busy with another run")
	// ErrUnknownServer is returned for a server number with no configured backends.
	ErrUnknownServer = errors.New("unknown server")
	// ErrShuttingDown is returned by Start once Shutdown has begun.
	ErrShuttingDown = errors.New("agent is shutting down")
)

// Endpoints are the base URLs of one server's storage manager and traffic
// controller.
type Endpoints struct {
	StorageManagerURL string
	TrafficControlURL string
}

// Backend holds the clients for one server.
type Backend struct {
	StorageManager *gateway.StorageManager
	TrafficControl *gateway.TrafficControl
}

// AgentConfig holds configuration for the run agent.
type AgentConfig struct {
	Servers             map[int]Endpoints
	RequestTimeout      time.Duration // Timeout of SM/TC calls (default: 30s)
	TickInterval        time.Duration // Scheduler sleep per loop (default: 500ms)
	CheckInterval       time.Duration // Station polling interval (default: 1s)
	LayerFetchDelay     time.Duration
	SubmitDelay         time.Duration
	MaxInventoryRetries int // default: 20
	RunHistory          int // Finished runs kept for status (default: 50)

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// runFunc executes a prepared scheduler against a run context.
type runFunc func(ctx context.Context, run *Run) error

// Agent starts scheduler runs and holds their contexts by run ID.
type Agent struct {
	store   Store
	config  AgentConfig
	sender  gateway.Sender
	clock   clock.Clock
	logger  *slog.Logger
	prepare func(plan *simulation.Plan, backend *Backend, journal *runJournal) (runFunc, error)

	mu      sync.Mutex
	runs    map[int64]*Run
	latest  *Run
	seq     uint64
	closing bool

	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once

	finished metric.Int64Counter
}

// New creates a new run agent.
func New(s Store, config AgentConfig, log *slog.Logger) *Agent {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 500 * time.Millisecond
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Second
	}
	if config.MaxInventoryRetries <= 0 {
		config.MaxInventoryRetries = inventory.DefaultRetryPolicy().MaxAttempts
	}
	if config.RunHistory <= 0 {
		config.RunHistory = 50
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}

	finished, _ := otel.Meter("mosaic-worker").Int64Counter("mosaic.runs.finished",
		metric.WithDescription("Scheduler runs that returned, by final state"),
	)

	a := &Agent{
		store:    s,
		config:   config,
		sender:   gateway.New(config.RequestTimeout),
		clock:    config.Clock,
		logger:   log,
		runs:     make(map[int64]*Run),
		done:     make(chan struct{}),
		finished: finished,
	}
	a.prepare = a.prepareScheduler
	return a
}

// Backend returns the clients of a configured server.
func (a *Agent) Backend(server int) (*Backend, error) {
	endpoints, ok := a.config.Servers[server]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownServer, server)
	}
	return &Backend{
		StorageManager: gateway.NewStorageManager(a.sender, endpoints.StorageManagerURL),
		TrafficControl: gateway.NewTrafficControl(a.sender, endpoints.TrafficControlURL),
	}, nil
}

// prepareScheduler wires a scheduler for plan to the server's backends.
func (a *Agent) prepareScheduler(plan *simulation.Plan, backend *Backend, journal *runJournal) (runFunc, error) {
	bins, err := inventory.NewSource(backend.StorageManager, plan.Parameters.ParetoProbabilities, inventory.Options{
		Policy: inventory.RetryPolicy{
			MaxAttempts: a.config.MaxInventoryRetries,
			LayerDelay:  a.config.LayerFetchDelay,
		},
		Clock:   a.clock,
		Journal: journal,
		Logger:  journal.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid pareto probabilities: %w", err)
	}

	orders := advanceorder.NewManager(bins, backend.StorageManager, advanceorder.Options{
		SubmitDelay: a.config.SubmitDelay,
		Clock:       a.clock,
		Journal:     journal,
		Logger:      journal.logger,
	})

	scheduler := simulation.New(plan, simulation.Deps{
		Storage:  backend.StorageManager,
		Bins:     bins,
		Orders:   orders,
		Traffic:  backend.TrafficControl,
		Recorder: journal,
		Clock:    a.clock,
		Logger:   journal.logger,
	}, simulation.Config{
		TickInterval:  a.config.TickInterval,
		CheckInterval: a.config.CheckInterval,
	})

	return func(ctx context.Context, run *Run) error {
		return scheduler.Run(ctx, run)
	}, nil
}

// Start saves the run record and launches the scheduler in the background.
// The run outlives ctx; only its values (trace, request ID) are kept.
//
// The run is reserved before the record is written so that conflicting
// starts are refused while the lock is released for the database call.
func (a *Agent) Start(ctx context.Context, plan *simulation.Plan) (*Run, error) {
	a.mu.Lock()

	if a.closing {
		a.mu.Unlock()
		return nil, ErrShuttingDown
	}
	prev, hadPrev := a.runs[plan.RunID]
	if hadPrev && prev.Running() {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrRunActive, plan.RunID)
	}
	for _, r := range a.runs {
		if r.Running() && r.ServerNumber == plan.ServerNumber {
			a.mu.Unlock()
			return nil, fmt.Errorf("%w: server %d is running %d", ErrServerBusy, plan.ServerNumber, r.ID)
		}
	}

	backend, err := a.Backend(plan.ServerNumber)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}

	journal := newRunJournal(plan.RunID, a.store, a.clock, a.logger)
	execute, err := a.prepare(plan, backend, journal)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}

	run := newRun(plan)
	runCtx, cancel := context.WithCancel(logger.WithRunID(context.WithoutCancel(ctx), plan.RunID))
	run.cancel = cancel
	a.seq++
	run.seq = a.seq

	prevLatest := a.latest
	a.runs[run.ID] = run
	a.latest = run
	a.wg.Add(1)
	a.mu.Unlock()

	if err := a.store.UpsertRun(ctx, runRecord(plan)); err != nil {
		err = fmt.Errorf("failed to save run %d: %w", plan.RunID, err)

		a.mu.Lock()
		if hadPrev {
			a.runs[run.ID] = prev
		} else {
			delete(a.runs, run.ID)
		}
		if a.latest == run {
			a.latest = prevLatest
		}
		a.mu.Unlock()

		cancel()
		run.finish(err)
		a.wg.Done()
		return nil, err
	}

	go a.execute(runCtx, run, execute, backend)

	logger.FromContext(runCtx, a.logger).InfoContext(runCtx, "Run started",
		"name", run.Name, "server", run.ServerNumber, "attempt", run.Attempt, "timeline", plan.Timeline.String())
	return run, nil
}

func runRecord(plan *simulation.Plan) *store.SimulationRun {
	stations := make([]store.RunStation, len(plan.Stations))
	for i, st := range plan.Stations {
		stations[i] = store.RunStation{Code: st.Code, Kind: string(st.Kind)}
	}
	return &store.SimulationRun{
		ID:             plan.RunID,
		Name:           plan.Name,
		ServerNumber:   plan.ServerNumber,
		DurationString: plan.Timeline.String(),
		Stations:       stations,
	}
}

func (a *Agent) execute(ctx context.Context, run *Run, execute runFunc, backend *Backend) {
	defer a.wg.Done()
	defer run.cancel()

	ctx, span := otel.Tracer("mosaic-worker").Start(ctx, "execute_run",
		trace.WithAttributes(
			attribute.Int64("run.id", run.ID),
			attribute.Int("run.server", run.ServerNumber),
			attribute.String("run.attempt", run.Attempt),
		),
	)
	defer span.End()

	log := logger.FromContext(ctx, a.logger).With("attempt", run.Attempt)

	err := execute(ctx, run)
	if err != nil {
		span.RecordError(err)
		log.ErrorContext(ctx, "Run failed", "error", err)

		// The scheduler only stops the traffic controller on a clean exit.
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.RequestTimeout)
		if stopErr := backend.TrafficControl.CycleStop(stopCtx); stopErr != nil {
			log.WarnContext(ctx, "Cycle stop after failure failed", "error", stopErr)
		}
		cancel()
	} else {
		log.InfoContext(ctx, "Run completed")
	}

	run.finish(err)
	a.prune()

	if a.finished != nil {
		a.finished.Add(context.WithoutCancel(ctx), 1,
			metric.WithAttributes(attribute.String("state", string(run.Status().State))))
	}
}

// prune drops the oldest finished runs beyond the configured history. The
// latest run is always kept for status.
func (a *Agent) prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	finished := make([]*Run, 0, len(a.runs))
	for _, r := range a.runs {
		if r != a.latest && !r.Running() {
			finished = append(finished, r)
		}
	}
	if len(finished) <= a.config.RunHistory {
		return
	}
	slices.SortFunc(finished, func(x, y *Run) int { return cmp.Compare(x.seq, y.seq) })
	for _, r := range finished[:len(finished)-a.config.RunHistory] {
		delete(a.runs, r.ID)
	}
}

// Stop requests a stop of the given run, or of the most recently started
// active run when runID is nil.
func (a *Agent) Stop(runID *int64) (Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var run *Run
	if runID != nil {
		run = a.runs[*runID]
	} else {
		run = a.latestActive()
	}
	if run == nil || !run.Running() {
		return Status{}, ErrRunNotFound
	}

	run.RequestStop()
	return run.Status(), nil
}

func (a *Agent) latestActive() *Run {
	if a.latest != nil && a.latest.Running() {
		return a.latest
	}
	var found *Run
	for _, r := range a.runs {
		if !r.Running() {
			continue
		}
		if found == nil || r.Status().StartTime != nil && found.Status().StartTime != nil &&
			r.Status().StartTime.After(*found.Status().StartTime) {
			found = r
		}
	}
	return found
}

// Status reports the given run, or the most recently started one when
// runID is nil.
func (a *Agent) Status(runID *int64) (Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	run := a.latest
	if runID != nil {
		run = a.runs[*runID]
	}
	if run == nil {
		return Status{}, ErrRunNotFound
	}
	return run.Status(), nil
}

// ActiveRun reports the running run on a server, if any.
func (a *Agent) ActiveRun(server int) (Status, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range a.runs {
		if r.ServerNumber == server && r.Running() {
			return r.Status(), true
		}
	}
	return Status{}, false
}

// ActiveRuns counts the runs still executing.
func (a *Agent) ActiveRuns() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, r := range a.runs {
		if r.Running() {
			n++
		}
	}
	return n
}

// Shutdown stops accepting runs, requests a stop of every active run and
// waits for them to finish. When ctx expires first the runs are cancelled.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closing = true
	for _, r := range a.runs {
		if r.Running() {
			r.RequestStop()
		}
	}
	a.mu.Unlock()

	go func() {
		a.wg.Wait()
		a.doneOnce.Do(func() { close(a.done) })
	}()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		a.mu.Lock()
		for _, r := range a.runs {
			r.cancel()
		}
		a.mu.Unlock()
		return ctx.Err()
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}
