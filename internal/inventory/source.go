// Package inventory draws bins for orders from the storage manager, using a
// per-layer probability distribution to decide which layers to draw from.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"mosaic/internal/clock"
	"mosaic/internal/gateway"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ErrInventoryExhausted is matched by *ExhaustedError.
var ErrInventoryExhausted = errors.New("inventory exhausted")

// ExhaustedError reports that no bin could be found within the retry budget.
type ExhaustedError struct {
	Requested int
	Attempts  int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no bins available after %d retries (requested %d): either they are physically unavailable, or the API is down",
		e.Attempts, e.Requested)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrInventoryExhausted
}

// Bin is a storage bin and the layer it was drawn from.
type Bin struct {
	Code  int `json:"code"`
	Layer int `json:"layer"`
}

// Codes returns the bin codes in order.
func Codes(bins []Bin) []int {
	codes := make([]int, len(bins))
	for i, b := range bins {
		codes[i] = b.Code
	}
	return codes
}

// LayerFetcher lists the bins available in a layer range.
type LayerFetcher interface {
	BinsInLayers(ctx context.Context, minLayer, maxLayer int, quantity *int) ([]gateway.Storage, error)
}

// Journal records run events.
type Journal interface {
	Record(ctx context.Context, action string, station, bin *int)
}

// RetryPolicy bounds how long BinsForOrder keeps drawing when every layer
// it picked came back empty.
type RetryPolicy struct {
	MaxAttempts int
	// LayerDelay is slept after each layer fetch.
	LayerDelay time.Duration
	// Backoff is slept between two unsuccessful attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy returns 20 attempts with a one second pause after
// every layer fetch.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 20,
		LayerDelay:  time.Second,
	}
}

// Options configures a Source.
type Options struct {
	Policy  RetryPolicy
	Clock   clock.Clock
	Rand    *rand.Rand
	Journal Journal
	Logger  *slog.Logger
}

// Source is the BinSource: it samples layers from a weight vector and picks
// concrete bins from those layers.
type Source struct {
	fetcher    LayerFetcher
	cumulative []float64
	policy     RetryPolicy
	clock      clock.Clock
	rng        *rand.Rand
	journal    Journal
	logger     *slog.Logger
	exhausted  metric.Int64Counter
}

// NewSource creates a Source. weights[i] is the relative weight of layer
// i+1; it is normalised internally.
func NewSource(fetcher LayerFetcher, weights []float64, opts Options) (*Source, error) {
	cumulative, err := normalise(weights)
	if err != nil {
		return nil, err
	}

	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	exhausted, _ := otel.Meter("mosaic-scheduler").Int64Counter("mosaic.inventory.exhaustions",
		metric.WithDescription("Orders for which no bins could be drawn"),
	)

	return &Source{
		fetcher:    fetcher,
		cumulative: cumulative,
		policy:     opts.Policy,
		clock:      opts.Clock,
		rng:        opts.Rand,
		journal:    opts.Journal,
		logger:     opts.Logger,
		exhausted:  exhausted,
	}, nil
}

func normalise(weights []float64) ([]float64, error) {
	if len(weights) == 0 {
		return nil, errors.New("layer weights must not be empty")
	}

	var total float64
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("layer %d has negative weight %v", i+1, w)
		}
		total += w
	}
	if total <= 0 {
		return nil, errors.New("layer weights must not sum to zero")
	}

	cumulative := make([]float64, len(weights))
	var running float64
	for i, w := range weights {
		running += w / total
		cumulative[i] = running
	}
	// Absorb rounding into the last layer that can be drawn, so trailing
	// zero-weight layers are never selected.
	last := len(weights) - 1
	for weights[last] == 0 {
		last--
	}
	for i := last; i < len(cumulative); i++ {
		cumulative[i] = 1
	}
	return cumulative, nil
}

// BinsForOrder draws up to count distinct bins. station, when non-nil, tags
// the journal entries with the station the bins are meant for.
//
// The result can hold fewer than count bins when layers run short; it is
// never empty unless count < 1. When every attempt comes back empty an
// *ExhaustedError is returned.
func (s *Source) BinsForOrder(ctx context.Context, count int, station *int) ([]Bin, error) {
	if count < 1 {
		s.record(ctx, "No bins created for order.", station)
		return nil, nil
	}

	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		perLayer := s.sampleLayers(count)
		s.record(ctx, fmt.Sprintf("Number of bins per layer to be assigned: %v", perLayer), station)

		var bins []Bin
		for i, quantity := range perLayer {
			if quantity == 0 {
				continue
			}
			layer := i + 1

			available, err := s.fetcher.BinsInLayers(ctx, layer, layer, nil)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.logger.Debug("Layer fetch failed", "layer", layer, "error", err)
				s.record(ctx, fmt.Sprintf("No bins available in layers (%d, %d)", layer, layer), station)
				available = nil
			}

			bins = append(bins, s.pick(available, quantity, layer)...)

			if err := s.clock.Sleep(ctx, s.policy.LayerDelay); err != nil {
				return nil, err
			}
		}

		if len(bins) > 0 {
			return unique(bins), nil
		}

		s.record(ctx, fmt.Sprintf("No bins at all. Retry loop %d", attempt), station)
		if attempt+1 < s.policy.MaxAttempts {
			if err := s.clock.Sleep(ctx, s.policy.Backoff); err != nil {
				return nil, err
			}
		}
	}

	exhausted := &ExhaustedError{Requested: count, Attempts: s.policy.MaxAttempts}
	s.record(ctx, "ERROR - "+exhausted.Error(), station)
	s.exhausted.Add(ctx, 1)
	return nil, exhausted
}

// sampleLayers draws count layer indices and tallies them per layer.
func (s *Source) sampleLayers(count int) []int {
	tally := make([]int, len(s.cumulative))
	for range count {
		r := s.rng.Float64()
		idx := len(s.cumulative) - 1
		for i, c := range s.cumulative {
			if r < c {
				idx = i
				break
			}
		}
		tally[idx]++
	}
	return tally
}

// pick samples min(quantity, len(available)) records without replacement.
func (s *Source) pick(available []gateway.Storage, quantity, layer int) []Bin {
	n := min(quantity, len(available))
	if n == 0 {
		return nil
	}

	pool := make([]gateway.Storage, len(available))
	copy(pool, available)

	picked := make([]Bin, 0, n)
	for i := 0; i < n; i++ {
		j := i + s.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
		picked = append(picked, Bin{Code: pool[i].Code, Layer: layer})
	}
	return picked
}

// unique keeps the first occurrence of every bin code.
func unique(bins []Bin) []Bin {
	seen := make(map[int]struct{}, len(bins))
	out := bins[:0]
	for _, b := range bins {
		if _, ok := seen[b.Code]; ok {
			continue
		}
		seen[b.Code] = struct{}{}
		out = append(out, b)
	}
	return out
}

func (s *Source) record(ctx context.Context, action string, station *int) {
	if s.journal != nil {
		s.journal.Record(ctx, action, station, nil)
	}
}

// FormatCodes renders bin codes as a comma separated list in brackets.
func FormatCodes(codes []int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, c := range codes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(c))
	}
	b.WriteByte(']')
	return b.String()
}
