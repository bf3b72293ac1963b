package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"mosaic/internal/advanceorder"
	"mosaic/internal/clock"
	"mosaic/internal/gateway"
	"mosaic/internal/inventory"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StorageService is the part of the storage manager the scheduler drives.
type StorageService interface {
	StationStatus(ctx context.Context, station int) ([]gateway.StorageStatus, error)
	CallBins(ctx context.Context, station int, storages []int) error
	StoreBin(ctx context.Context, station, storage int, advanceOrder string) error
}

// BinSource draws bins for a fresh order.
type BinSource interface {
	BinsForOrder(ctx context.Context, count int, station *int) ([]inventory.Bin, error)
}

// OrderManager creates and submits advance orders.
type OrderManager interface {
	Create(ctx context.Context, count, binsPerOrder int) (*advanceorder.Book, error)
	Submit(ctx context.Context, orders ...*advanceorder.Book) error
}

// CycleStopper halts the traffic controller.
type CycleStopper interface {
	CycleStop(ctx context.Context) error
}

// Recorder journals run events and persists the run's timestamps.
type Recorder interface {
	Record(ctx context.Context, action string, station, bin *int)
	MarkStarted(ctx context.Context, at time.Time) error
	MarkEnded(ctx context.Context, at time.Time) error
	Close() error
}

// Control is the run context shared with the operator: the stop flag it
// sets and the times the scheduler reports back.
type Control interface {
	StopRequested() bool
	SetStartTime(t time.Time)
	SetStopTime(t time.Time)
}

// Config holds the scheduler timing.
type Config struct {
	// TickInterval is slept after every loop iteration.
	TickInterval time.Duration
	// CheckInterval gates how often stations are serviced.
	CheckInterval time.Duration
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Storage  StorageService
	Bins     BinSource
	Orders   OrderManager
	Traffic  CycleStopper
	Recorder Recorder
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Phase is the state of the current normal operation.
type Phase int

const (
	// Filling stations get new orders whenever their group runs dry.
	Filling Phase = iota
	// Draining stations finish the bins they hold once the normal
	// operation's time is up.
	Draining
)

func (p Phase) String() string {
	if p == Draining {
		return "draining"
	}
	return "filling"
}

// loopState is the bookkeeping carried between ticks.
type loopState struct {
	nextCheck  time.Time
	iteration  int
	phase      Phase
	phaseStart time.Time
	// allOrdersCompleted gates the advance-order branch: it is set once
	// every station is empty outside a normal operation.
	allOrdersCompleted bool
}

// Scheduler is the StationScheduler of one run. It owns the run's stations
// and advance-order books; a Scheduler must not be shared between runs.
type Scheduler struct {
	plan     *Plan
	storage  StorageService
	bins     BinSource
	orders   OrderManager
	traffic  CycleStopper
	recorder Recorder
	clock    clock.Clock
	logger   *slog.Logger
	config   Config

	inbound  *advanceorder.Book
	outbound *advanceorder.Book

	binsCalled metric.Int64Counter
	binsStored metric.Int64Counter
}

// New creates a Scheduler for plan.
func New(plan *Plan, deps Deps, config Config) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = 500 * time.Millisecond
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	meter := otel.Meter("mosaic-scheduler")
	binsCalled, _ := meter.Int64Counter("mosaic.bins.called",
		metric.WithDescription("Bins called to stations"),
	)
	binsStored, _ := meter.Int64Counter("mosaic.bins.stored",
		metric.WithDescription("Bins stored back from stations"),
	)

	return &Scheduler{
		plan:       plan,
		storage:    deps.Storage,
		bins:       deps.Bins,
		orders:     deps.Orders,
		traffic:    deps.Traffic,
		recorder:   deps.Recorder,
		clock:      deps.Clock,
		logger:     deps.Logger,
		config:     config,
		inbound:    advanceorder.NewBook(),
		outbound:   advanceorder.NewBook(),
		binsCalled: binsCalled,
		binsStored: binsStored,
	}
}

// Run drives the stations until the timeline is over or a stop is
// requested, then records the end of the run and stops the traffic
// controller.
//
// Any error is fatal for the run: the end timestamp is not recorded and the
// traffic controller is left to the caller.
func (s *Scheduler) Run(ctx context.Context, control Control) (err error) {
	ctx, span := otel.Tracer("mosaic-scheduler").Start(ctx, "simulation.run",
		trace.WithAttributes(
			attribute.Int64("run.id", s.plan.RunID),
			attribute.String("run.name", s.plan.Name),
			attribute.Int("run.server", s.plan.ServerNumber),
			attribute.String("run.timeline", s.plan.Timeline.String()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := s.clock.Now()
	if err := s.recorder.MarkStarted(ctx, start); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	control.SetStartTime(start)
	s.recorder.Record(ctx, ActionSimulationStarts, nil, nil)

	deadline := start.Add(s.plan.Timeline.Total())
	state := loopState{nextCheck: start, allOrdersCompleted: true}

	for !control.StopRequested() && !s.clock.Now().After(deadline) {
		if err := s.tick(ctx, start, &state); err != nil {
			return err
		}
		if err := s.clock.Sleep(ctx, s.config.TickInterval); err != nil {
			return err
		}
	}

	end := s.clock.Now()
	control.SetStopTime(end)
	s.recorder.Record(ctx, ActionSimulationEnds, nil, nil)

	if err := s.recorder.MarkEnded(ctx, end); err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	if err := s.recorder.Close(); err != nil {
		s.logger.WarnContext(ctx, "Failed to close run journal", "error", err)
	}
	if err := s.traffic.CycleStop(ctx); err != nil {
		s.logger.WarnContext(ctx, "Cycle stop failed", "error", err)
	}
	return nil
}

func (s *Scheduler) tick(ctx context.Context, start time.Time, state *loopState) error {
	now := s.clock.Now()
	if now.Before(state.nextCheck) {
		return nil
	}

	op, idx := s.plan.Timeline.Current(now.Sub(start))
	switch {
	case op.Kind == AdvanceOrder && state.allOrdersCompleted:
		next, err := s.advanceOrders(ctx, start, idx)
		if err != nil {
			return err
		}
		state.nextCheck = next
	case op.Kind == Normal || !state.allOrdersCompleted:
		return s.serviceStations(ctx, now, op, state)
	}
	return nil
}

// advanceOrders stages orders for the rest of the advance-order operation
// idx and returns the time the operation ends.
func (s *Scheduler) advanceOrders(ctx context.Context, start time.Time, idx int) (time.Time, error) {
	ctx, span := otel.Tracer("mosaic-scheduler").Start(ctx, "simulation.advance_orders")
	defer span.End()

	s.recorder.Record(ctx, ActionAdvanceOrderStarts, nil, nil)

	end := start.Add(s.plan.Timeline.EndOf(idx))
	remaining := max(end.Sub(s.clock.Now()), time.Second)

	p := s.plan.Parameters
	inboundCount := ordersFor(p.InboundOrdersPerHour, remaining)
	outboundCount := ordersFor(p.OutboundOrdersPerHour, remaining)
	span.SetAttributes(
		attribute.Int("orders.inbound", inboundCount),
		attribute.Int("orders.outbound", outboundCount),
	)

	s.recorder.Record(ctx, fmt.Sprintf("Number of inbound advance orders: %d", inboundCount), nil, nil)
	inbound, err := s.orders.Create(ctx, inboundCount, p.InboundBinsPerOrder)
	if err != nil {
		span.RecordError(err)
		return time.Time{}, err
	}

	s.recorder.Record(ctx, fmt.Sprintf("Number of outbound advance orders: %d", outboundCount), nil, nil)
	outbound, err := s.orders.Create(ctx, outboundCount, p.OutboundBinsPerOrder)
	if err != nil {
		span.RecordError(err)
		return time.Time{}, err
	}

	if inbound.Len()+outbound.Len() > 0 {
		if err := s.orders.Submit(ctx, inbound, outbound); err != nil {
			span.RecordError(err)
			return time.Time{}, err
		}
	}

	s.inbound.Merge(inbound)
	s.outbound.Merge(outbound)

	s.recorder.Record(ctx, fmt.Sprintf("Advance order ends in %d seconds", int(end.Sub(s.clock.Now()).Seconds())), nil, nil)
	return end, nil
}

// ordersFor is the number of orders arriving at perHour within d, rounded up.
func ordersFor(perHour int, d time.Duration) int {
	return int(math.Ceil(float64(perHour) * d.Seconds() / 3600))
}

func (s *Scheduler) serviceStations(ctx context.Context, now time.Time, op Operation, state *loopState) error {
	if state.iteration == 0 && op.Kind == Normal {
		state.phaseStart = now
		state.phase = Filling
		s.recorder.Record(ctx, ActionNormalOperationStarts, nil, nil)
	}

	for _, group := range s.plan.Groups {
		if err := s.serviceGroup(ctx, group, op.Kind); err != nil {
			return err
		}
	}

	state.nextCheck = now.Add(s.config.CheckInterval)
	if state.phase != Draining {
		state.iteration++
	}

	state.allOrdersCompleted = s.allStationsEmpty() && op.Kind != Normal
	if state.allOrdersCompleted {
		s.recorder.Record(ctx, ActionAllOrdersCompleted, nil, nil)
	}

	if !state.phaseStart.IsZero() && state.phase != Draining &&
		!s.clock.Now().Before(state.phaseStart.Add(op.Duration)) {
		state.iteration = 0
		state.phase = Draining
		s.recorder.Record(ctx, ActionNormalOperationEnds, nil, nil)
	}
	return nil
}

func (s *Scheduler) serviceGroup(ctx context.Context, group *StationGroup, kind OperationKind) error {
	if group.AllEmpty() && kind == Normal {
		if err := s.fill(ctx, group); err != nil {
			return err
		}
		for _, st := range group.Members {
			if err := s.callBins(ctx, st); err != nil {
				return err
			}
		}
	}

	// Nothing was handed out: stations are idle until the next fill.
	if group.AllEmpty() {
		return nil
	}

	for _, st := range group.Members {
		if err := s.serviceStation(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// fill hands the group its next order: the oldest pending advance order of
// its kind, or fresh bins drawn from the inventory.
func (s *Scheduler) fill(ctx context.Context, group *StationGroup) error {
	book := s.inbound
	if group.Kind == Outbound {
		book = s.outbound
	}

	if order, ok := book.PopOldest(); ok {
		for i, share := range splitBins(order.Bins, len(group.Members)) {
			group.Members[i].Assign(share, order.Name)
		}
		return nil
	}

	n, err := s.plan.Parameters.BinsPerOrder(group.Kind)
	if err != nil {
		return err
	}
	for i, count := range SplitEvenly(n, len(group.Members)) {
		st := group.Members[i]
		code := st.Code
		bins, err := s.bins.BinsForOrder(ctx, count, &code)
		if err != nil {
			return fmt.Errorf("failed to draw bins for station %d: %w", st.Code, err)
		}
		st.Assign(bins, "")
	}
	return nil
}

func (s *Scheduler) callBins(ctx context.Context, st *Station) error {
	codes := inventory.Codes(st.Bins)

	action := fmt.Sprintf("%d bins called. Bin IDs: %s", len(codes), inventory.FormatCodes(codes))
	if st.AdvanceOrder != "" {
		action = fmt.Sprintf("Advance order %s. %s", st.AdvanceOrder, action)
	}
	station := st.Code
	s.recorder.Record(ctx, action, &station, nil)

	if err := s.storage.CallBins(ctx, st.Code, codes); err != nil {
		return fmt.Errorf("failed to call bins to station %d: %w", st.Code, err)
	}
	if s.binsCalled != nil {
		s.binsCalled.Add(ctx, int64(len(codes)))
	}
	return nil
}

// serviceStation stores the bin waiting at the station once its handling
// time is up.
func (s *Scheduler) serviceStation(ctx context.Context, st *Station) error {
	statuses, err := s.storage.StationStatus(ctx, st.Code)
	if err != nil {
		return fmt.Errorf("failed to check station %d: %w", st.Code, err)
	}

	bin, ok := binAtStation(statuses)
	if !ok || s.clock.Now().Before(st.NextJobReadyAt) {
		return nil
	}

	if err := s.storage.StoreBin(ctx, st.Code, bin, st.AdvanceOrder); err != nil {
		return fmt.Errorf("failed to store bin %d at station %d: %w", bin, st.Code, err)
	}
	station := st.Code
	s.recorder.Record(ctx, ActionBinStored, &station, &bin)
	if s.binsStored != nil {
		s.binsStored.Add(ctx, 1, metric.WithAttributes(attribute.String("station.kind", string(st.Kind))))
	}

	handling, err := s.plan.Parameters.HandlingTime(st.Kind)
	if err != nil {
		return err
	}
	st.NextJobReadyAt = s.clock.Now().Add(handling)

	return st.RemoveBin(bin)
}

func binAtStation(statuses []gateway.StorageStatus) (int, bool) {
	for _, status := range statuses {
		if status.LastMovement == gateway.MovementAtStationWork {
			return status.Code, true
		}
	}
	return 0, false
}

func (s *Scheduler) allStationsEmpty() bool {
	for _, st := range s.plan.Stations {
		if !st.Empty() {
			return false
		}
	}
	return true
}
