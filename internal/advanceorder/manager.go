package advanceorder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"mosaic/internal/clock"
	"mosaic/internal/inventory"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// maxOrderName is the exclusive upper bound of generated order names.
const maxOrderName = 1_000_000_000

// BinSource draws bins for one order.
type BinSource interface {
	BinsForOrder(ctx context.Context, count int, station *int) ([]inventory.Bin, error)
}

// Registry accepts advance orders on the remote side.
type Registry interface {
	UpsertAdvanceOrder(ctx context.Context, orderNo string, storages []int) error
}

// Options configures a Manager.
type Options struct {
	// SubmitDelay is slept after each submitted order.
	SubmitDelay time.Duration
	Clock       clock.Clock
	Rand        *rand.Rand
	Journal     inventory.Journal
	Logger      *slog.Logger
}

// Manager is the AdvanceOrderManager.
type Manager struct {
	bins        BinSource
	registry    Registry
	submitDelay time.Duration
	clock       clock.Clock
	rng         *rand.Rand
	journal     inventory.Journal
	logger      *slog.Logger
	submitted   metric.Int64Counter
}

// NewManager creates a Manager.
func NewManager(bins BinSource, registry Registry, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	submitted, _ := otel.Meter("mosaic-scheduler").Int64Counter("mosaic.advance_orders.submitted",
		metric.WithDescription("Advance orders accepted by the storage manager"),
	)

	return &Manager{
		bins:        bins,
		registry:    registry,
		submitDelay: opts.SubmitDelay,
		clock:       opts.Clock,
		rng:         opts.Rand,
		journal:     opts.Journal,
		logger:      opts.Logger,
		submitted:   submitted,
	}
}

// newName returns a random name in [1, 1e9). Names are not checked against
// earlier orders.
func (m *Manager) newName() string {
	return strconv.Itoa(1 + m.rng.IntN(maxOrderName-1))
}

// Create draws count orders of binsPerOrder bins each. A generated name that
// collides with one drawn earlier in the same call replaces it.
func (m *Manager) Create(ctx context.Context, count, binsPerOrder int) (*Book, error) {
	book := NewBook()
	for i := 0; i < count; i++ {
		name := m.newName()
		bins, err := m.bins.BinsForOrder(ctx, binsPerOrder, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create advance order %d of %d: %w", i+1, count, err)
		}
		book.Put(Order{Name: name, Bins: bins})
	}
	return book, nil
}

// Submit upserts the orders one at a time, oldest first, pausing after each.
// The first failure aborts the remaining submissions.
func (m *Manager) Submit(ctx context.Context, orders ...*Book) error {
	for _, book := range orders {
		if book == nil {
			continue
		}
		for _, order := range book.Orders() {
			codes := inventory.Codes(order.Bins)
			if err := m.registry.UpsertAdvanceOrder(ctx, order.Name, codes); err != nil {
				return fmt.Errorf("failed to submit advance order %s: %w", order.Name, err)
			}
			if m.submitted != nil {
				m.submitted.Add(ctx, 1)
			}

			m.record(ctx, fmt.Sprintf("Advance order %s submitted. %d bins. Bin IDs: %s",
				order.Name, len(codes), inventory.FormatCodes(codes)))

			if err := m.clock.Sleep(ctx, m.submitDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) record(ctx context.Context, action string) {
	if m.journal != nil {
		m.journal.Record(ctx, action, nil, nil)
		return
	}
	m.logger.InfoContext(ctx, action)
}
