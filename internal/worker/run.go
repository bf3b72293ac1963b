package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mosaic/internal/simulation"

	"github.com/google/uuid"
)

// State is the lifecycle state of a run held by the agent.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Run is the context of one scheduler run: the operator's stop flag and
// the times and outcome reported back by the scheduler.
type Run struct {
	ID           int64
	Name         string
	ServerNumber int
	// Attempt tells apart executions that reuse the same run id.
	Attempt string

	stop atomic.Bool

	mu        sync.RWMutex
	startTime time.Time
	stopTime  time.Time
	state     State
	err       error

	done   chan struct{}
	cancel context.CancelFunc
	seq    uint64 // start order within the agent
}

// Status is a point-in-time copy of a Run.
type Status struct {
	RunID         int64
	Attempt       string
	Name          string
	ServerNumber  int
	StartTime     *time.Time
	StopTime      *time.Time
	StopRequested bool
	State         State
	Error         string
}

func newRun(plan *simulation.Plan) *Run {
	return &Run{
		ID:           plan.RunID,
		Name:         plan.Name,
		ServerNumber: plan.ServerNumber,
		Attempt:      uuid.NewString(),
		state:        StateRunning,
		done:         make(chan struct{}),
		cancel:       func() {},
	}
}

// StopRequested reports whether an operator asked the run to stop.
func (r *Run) StopRequested() bool {
	return r.stop.Load()
}

// RequestStop asks the scheduler to stop at its next tick.
func (r *Run) RequestStop() {
	r.stop.Store(true)
}

func (r *Run) SetStartTime(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = t
}

func (r *Run) SetStopTime(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTime = t
}

// Running reports whether the scheduler has not returned yet.
func (r *Run) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == StateRunning
}

// Err returns the error the run failed with, if any.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Done is closed once the run has finished its exit path.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Status{
		RunID:         r.ID,
		Attempt:       r.Attempt,
		Name:          r.Name,
		ServerNumber:  r.ServerNumber,
		StopRequested: r.stop.Load(),
		State:         r.state,
	}
	if !r.startTime.IsZero() {
		t := r.startTime
		s.StartTime = &t
	}
	if !r.stopTime.IsZero() {
		t := r.stopTime
		s.StopTime = &t
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

func (r *Run) finish(err error) {
	r.mu.Lock()
	if err != nil {
		r.state = StateFailed
		r.err = err
	} else {
		r.state = StateCompleted
	}
	r.mu.Unlock()
	close(r.done)
}
