package inventory

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"mosaic/internal/clock"
	"mosaic/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu     sync.Mutex
	layers map[int][]gateway.Storage
	errs   map[int]error
	calls  []int
}

func (f *fakeFetcher) BinsInLayers(ctx context.Context, minLayer, maxLayer int, quantity *int) ([]gateway.Storage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, minLayer)
	if err := f.errs[minLayer]; err != nil {
		return nil, err
	}
	return f.layers[minLayer], nil
}

type memoryJournal struct {
	actions []string
}

func (j *memoryJournal) Record(ctx context.Context, action string, station, bin *int) {
	j.actions = append(j.actions, action)
}

func storages(codes ...int) []gateway.Storage {
	out := make([]gateway.Storage, len(codes))
	for i, c := range codes {
		out[i] = gateway.Storage{Code: c}
	}
	return out
}

func newTestSource(t *testing.T, fetcher LayerFetcher, weights []float64, policy RetryPolicy) (*Source, *clock.Fake, *memoryJournal) {
	t.Helper()
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	journal := &memoryJournal{}
	src, err := NewSource(fetcher, weights, Options{
		Policy:  policy,
		Clock:   fake,
		Rand:    rand.New(rand.NewPCG(1, 2)),
		Journal: journal,
	})
	require.NoError(t, err)
	return src, fake, journal
}

func TestNewSource_InvalidWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
	}{
		{"empty", nil},
		{"all zero", []float64{0, 0}},
		{"negative", []float64{0.5, -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSource(&fakeFetcher{}, tt.weights, Options{})
			assert.Error(t, err)
		})
	}
}

func TestBinsForOrder_CountBelowOne(t *testing.T) {
	fetcher := &fakeFetcher{}
	src, fake, journal := newTestSource(t, fetcher, []float64{1}, DefaultRetryPolicy())

	for _, count := range []int{0, -3} {
		bins, err := src.BinsForOrder(context.Background(), count, nil)
		require.NoError(t, err)
		assert.Empty(t, bins)
	}

	assert.Empty(t, fetcher.calls, "no network calls expected")
	assert.Zero(t, fake.Slept())
	assert.Contains(t, journal.actions, "No bins created for order.")
}

func TestBinsForOrder_SingleLayer(t *testing.T) {
	fetcher := &fakeFetcher{layers: map[int][]gateway.Storage{
		1: storages(10, 11, 12, 13, 14, 15),
	}}
	src, fake, _ := newTestSource(t, fetcher, []float64{3}, DefaultRetryPolicy())

	bins, err := src.BinsForOrder(context.Background(), 4, nil)
	require.NoError(t, err)

	assert.Len(t, bins, 4)
	assert.Equal(t, []int{1}, fetcher.calls)
	assert.Equal(t, time.Second, fake.Slept())
	for _, b := range bins {
		assert.Equal(t, 1, b.Layer)
	}
}

func TestBinsForOrder_NoDuplicates(t *testing.T) {
	// Every layer returns the same bins so that cross-layer duplicates occur.
	shared := storages(1, 2, 3)
	fetcher := &fakeFetcher{layers: map[int][]gateway.Storage{1: shared, 2: shared, 3: shared}}
	src, _, _ := newTestSource(t, fetcher, []float64{1, 1, 1}, DefaultRetryPolicy())

	for i := 0; i < 20; i++ {
		bins, err := src.BinsForOrder(context.Background(), 9, nil)
		require.NoError(t, err)
		require.NotEmpty(t, bins)

		seen := map[int]bool{}
		for _, b := range bins {
			assert.False(t, seen[b.Code], "duplicate bin %d", b.Code)
			seen[b.Code] = true
		}
		assert.LessOrEqual(t, len(bins), 3)
	}
}

func TestBinsForOrder_ShortLayerReturnsFewer(t *testing.T) {
	fetcher := &fakeFetcher{layers: map[int][]gateway.Storage{1: storages(7)}}
	src, _, _ := newTestSource(t, fetcher, []float64{1}, DefaultRetryPolicy())

	bins, err := src.BinsForOrder(context.Background(), 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []Bin{{Code: 7, Layer: 1}}, bins)
}

func TestBinsForOrder_FetchFailureIsZeroAvailability(t *testing.T) {
	fetcher := &fakeFetcher{
		layers: map[int][]gateway.Storage{2: storages(20, 21)},
		errs:   map[int]error{1: errors.New("connection refused")},
	}
	// Weight only on layer 1 for the failing case.
	src, _, journal := newTestSource(t, fetcher, []float64{1, 0}, RetryPolicy{MaxAttempts: 3, LayerDelay: time.Second})

	_, err := src.BinsForOrder(context.Background(), 2, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInventoryExhausted)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 2, exhausted.Requested)

	assert.Len(t, fetcher.calls, 3)
	assert.Contains(t, journal.actions, "No bins available in layers (1, 1)")
}

func TestBinsForOrder_RecoversAfterEmptyAttempts(t *testing.T) {
	fetcher := &fakeFetcher{layers: map[int][]gateway.Storage{}}
	src, fake, _ := newTestSource(t, fetcher, []float64{1}, RetryPolicy{MaxAttempts: 5, LayerDelay: time.Second, Backoff: 2 * time.Second})

	attempts := 0
	fake.OnSleep(func(time.Time) {
		attempts++
		if attempts == 3 {
			fetcher.mu.Lock()
			fetcher.layers[1] = storages(99)
			fetcher.mu.Unlock()
		}
	})

	bins, err := src.BinsForOrder(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []Bin{{Code: 99, Layer: 1}}, bins)
}

func TestBinsForOrder_ContextCancelled(t *testing.T) {
	fetcher := &fakeFetcher{layers: map[int][]gateway.Storage{1: storages(1)}}
	src, _, _ := newTestSource(t, fetcher, []float64{1}, DefaultRetryPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.BinsForOrder(ctx, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleLayers_FollowsWeights(t *testing.T) {
	src, _, _ := newTestSource(t, &fakeFetcher{}, []float64{0.7, 0.2, 0.1, 0}, DefaultRetryPolicy())

	tally := src.sampleLayers(10_000)
	require.Len(t, tally, 4)

	total := 0
	for _, n := range tally {
		total += n
	}
	assert.Equal(t, 10_000, total)
	assert.Zero(t, tally[3], "zero-weight layer must never be drawn")
	assert.InDelta(t, 0.7, float64(tally[0])/10_000, 0.03)
	assert.InDelta(t, 0.2, float64(tally[1])/10_000, 0.03)
}

func TestCodes(t *testing.T) {
	assert.Equal(t, []int{3, 1}, Codes([]Bin{{Code: 3}, {Code: 1}}))
	assert.Empty(t, Codes(nil))
}

func TestFormatCodes(t *testing.T) {
	assert.Equal(t, "[]", FormatCodes(nil))
	assert.Equal(t, "[4]", FormatCodes([]int{4}))
	assert.Equal(t, "[4, 5, 6]", FormatCodes([]int{4, 5, 6}))
}
