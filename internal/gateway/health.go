package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is reported when a probe is short-circuited.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Probe is the outcome of a single health check.
type Probe struct {
	Reachable bool   `json:"reachable"`
	Active    bool   `json:"active"`
	Error     string `json:"error,omitempty"`
}

// BreakerSettings configures the per-service breakers used by Prober.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Prober runs SM and TC health checks through one circuit breaker per
// service base URL, so a dead service is not hammered by dashboard polling.
type Prober struct {
	timeout  time.Duration
	settings BreakerSettings
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewProber creates a Prober. timeout bounds each probe request.
func NewProber(timeout time.Duration, settings BreakerSettings, logger *slog.Logger) *Prober {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 3
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	return &Prober{
		timeout:  timeout,
		settings: settings,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (p *Prober) breaker(name string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[name]; ok {
		return cb
	}

	threshold := p.settings.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     p.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	p.breakers[name] = cb
	return cb
}

// probeResult carries an answer from a service that responded. A malformed
// or incomplete answer is kept in err without counting against the breaker.
type probeResult struct {
	active bool
	err    error
}

func (p *Prober) run(name string, fn func() (bool, error)) Probe {
	result, err := p.breaker(name).Execute(func() (interface{}, error) {
		active, err := fn()
		if errors.Is(err, ErrRemoteCallFailed) {
			return nil, err
		}
		return probeResult{active: active, err: err}, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Probe{Error: ErrCircuitOpen.Error()}
	}
	if err != nil {
		return Probe{Error: err.Error()}
	}

	res := result.(probeResult)
	if res.err != nil {
		return Probe{Reachable: true, Error: res.err.Error()}
	}
	return Probe{Reachable: true, Active: res.active}
}

// StorageManager reports whether the order dispatcher of zone is active.
func (p *Prober) StorageManager(ctx context.Context, sm *StorageManager, zone string) Probe {
	return p.run("sm:"+sm.baseURL, func() (bool, error) {
		return sm.OrderDispatcherActive(ctx, zone, p.timeout)
	})
}

// TrafficControl reports the TC cycle-stop flag.
func (p *Prober) TrafficControl(ctx context.Context, tc *TrafficControl) Probe {
	return p.run("tc:"+tc.baseURL, func() (bool, error) {
		return tc.CycleStopped(ctx, p.timeout)
	})
}
