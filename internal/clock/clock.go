// Package clock abstracts wall time so that the scheduler and its
// collaborators can be driven deterministically in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock reports the current time and blocks for a duration.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type system struct{}

// New returns a Clock backed by the system wall clock.
func New() Clock {
	return system{}
}

func (system) Now() time.Time {
	return time.Now()
}

func (system) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fake is a manually advanced Clock. Sleep returns immediately after moving
// the clock forward, so a loop that sleeps between ticks runs at full speed.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	slept   time.Duration
	onSleep func(now time.Time)
}

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	if d > 0 {
		f.now = f.now.Add(d)
		f.slept += d
	}
	hook, now := f.onSleep, f.now
	f.mu.Unlock()

	if hook != nil {
		hook(now)
	}
	return nil
}

// Advance moves the clock forward by d without counting it as sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Slept returns the total duration passed to Sleep so far.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// OnSleep registers a hook invoked after every Sleep with the new time.
func (f *Fake) OnSleep(hook func(now time.Time)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSleep = hook
}
