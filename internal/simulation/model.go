// Package simulation runs the station scheduler: it drives bins from the
// storage grid to stations and back, phase by phase, along a timeline of
// normal and advance-order operations.
package simulation

import (
	"errors"
	"fmt"
	"time"

	"mosaic/internal/inventory"
	"mosaic/pkg/api"
)

var (
	// ErrInvalidStationType is returned for a station kind other than
	// inbound or outbound.
	ErrInvalidStationType = errors.New("invalid station type")

	// ErrConsistencyViolation is returned when the storage manager reports
	// a bin at a station that the scheduler never assigned to it.
	ErrConsistencyViolation = errors.New("consistency violation")

	// ErrInvalidPlan is returned when stations and groups do not fit
	// together.
	ErrInvalidPlan = errors.New("invalid plan")
)

// Journal actions recorded by the scheduler.
const (
	ActionSimulationStarts      = "Simulation starts"
	ActionSimulationEnds        = "Simulation ends"
	ActionAdvanceOrderStarts    = "Advance order starts"
	ActionNormalOperationStarts = "Normal operation starts"
	ActionAllOrdersCompleted    = "All orders completed beyond normal operation."
	ActionNormalOperationEnds   = "Normal operation ends. Completing remaining bins in existing orders."
	ActionBinStored             = "Bin stored"
)

// StationKind is the direction a station works in.
type StationKind string

const (
	Inbound  StationKind = "I"
	Outbound StationKind = "O"
)

// ParseStationKind validates a station type from a request.
func ParseStationKind(s string) (StationKind, error) {
	switch StationKind(s) {
	case Inbound, Outbound:
		return StationKind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStationType, s)
	}
}

// Station is a pick/drop point and the batch of bins it is working through.
type Station struct {
	Code           int
	Kind           StationKind
	Bins           []inventory.Bin
	NextJobReadyAt time.Time
	// AdvanceOrder is the name of the order the current batch belongs to,
	// empty for freshly drawn bins.
	AdvanceOrder string
}

// Empty reports whether the station has no bins left to work.
func (s *Station) Empty() bool {
	return len(s.Bins) == 0
}

// Assign replaces the station's batch. The slice is copied.
func (s *Station) Assign(bins []inventory.Bin, advanceOrder string) {
	s.Bins = append([]inventory.Bin(nil), bins...)
	s.AdvanceOrder = advanceOrder
}

// RemoveBin drops a worked bin from the batch.
func (s *Station) RemoveBin(code int) error {
	for i, b := range s.Bins {
		if b.Code == code {
			s.Bins = append(s.Bins[:i], s.Bins[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: bin %d not found at station %d", ErrConsistencyViolation, code, s.Code)
}

// StationGroup is a set of stations of one kind that share each order.
type StationGroup struct {
	ID      int
	Kind    StationKind
	Members []*Station
}

// NewStationGroup validates that members is non-empty and uniform in kind.
func NewStationGroup(id int, members []*Station) (*StationGroup, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: group %d has no stations", ErrInvalidPlan, id)
	}
	kind := members[0].Kind
	// A station listed twice is kept once, at its first position.
	unique := make([]*Station, 0, len(members))
	seen := make(map[int]bool, len(members))
	for _, st := range members {
		if st.Kind != kind {
			return nil, fmt.Errorf("%w: group %d mixes station kinds %q and %q", ErrInvalidPlan, id, kind, st.Kind)
		}
		if seen[st.Code] {
			continue
		}
		seen[st.Code] = true
		unique = append(unique, st)
	}
	return &StationGroup{ID: id, Kind: kind, Members: unique}, nil
}

// AllEmpty reports whether no member holds bins.
func (g *StationGroup) AllEmpty() bool {
	for _, st := range g.Members {
		if !st.Empty() {
			return false
		}
	}
	return true
}

// SplitEvenly spreads n items over k slots: every slot takes ceil(n/k)
// until the items run out, so the counts always sum to n.
func SplitEvenly(n, k int) []int {
	if k < 1 {
		return nil
	}
	per := (n + k - 1) / k
	remaining := n
	out := make([]int, k)
	for i := range out {
		take := min(per, remaining)
		if take < 0 {
			take = 0
		}
		out[i] = take
		remaining -= take
	}
	return out
}

// splitBins slices bins across k stations with SplitEvenly.
func splitBins(bins []inventory.Bin, k int) [][]inventory.Bin {
	out := make([][]inventory.Bin, k)
	offset := 0
	for i, n := range SplitEvenly(len(bins), k) {
		out[i] = bins[offset : offset+n]
		offset += n
	}
	return out
}

// Parameters are the demand parameters of a run.
type Parameters struct {
	InboundTime           time.Duration
	OutboundTime          time.Duration
	InboundBinsPerOrder   int
	OutboundBinsPerOrder  int
	InboundOrdersPerHour  int
	OutboundOrdersPerHour int
	ParetoProbabilities   []float64
}

// HandlingTime is the time a station of kind needs per bin.
func (p Parameters) HandlingTime(kind StationKind) (time.Duration, error) {
	switch kind {
	case Inbound:
		return p.InboundTime, nil
	case Outbound:
		return p.OutboundTime, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStationType, kind)
	}
}

// BinsPerOrder is the size of a fresh order for stations of kind.
func (p Parameters) BinsPerOrder(kind StationKind) (int, error) {
	switch kind {
	case Inbound:
		return p.InboundBinsPerOrder, nil
	case Outbound:
		return p.OutboundBinsPerOrder, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStationType, kind)
	}
}

// Plan is a validated run request.
type Plan struct {
	RunID        int64
	Name         string
	ServerNumber int
	Timeline     Timeline
	Parameters   Parameters
	// Stations in request order; groups reference these.
	Stations []*Station
	Groups   []*StationGroup
}

// NewPlan builds the station model and timeline from a request.
func NewPlan(req api.JobsCreationRequest) (*Plan, error) {
	timeline, err := ParseTimeline(req.Configuration.DurationString)
	if err != nil {
		return nil, err
	}

	stations := make([]*Station, 0, len(req.Stations))
	byCode := make(map[int]*Station, len(req.Stations))
	for _, s := range req.Stations {
		kind, err := ParseStationKind(s.Type)
		if err != nil {
			return nil, fmt.Errorf("station %d: %w", s.Code, err)
		}
		if _, dup := byCode[s.Code]; dup {
			return nil, fmt.Errorf("%w: station %d listed twice", ErrInvalidPlan, s.Code)
		}
		st := &Station{Code: s.Code, Kind: kind}
		stations = append(stations, st)
		byCode[s.Code] = st
	}

	groups := make([]*StationGroup, 0, len(req.StationGroups))
	for _, g := range req.StationGroups {
		members := make([]*Station, 0, len(g.StationCodes))
		for _, code := range g.StationCodes {
			st, ok := byCode[code]
			if !ok {
				return nil, fmt.Errorf("%w: group %d references unknown station %d", ErrInvalidPlan, g.Group, code)
			}
			members = append(members, st)
		}
		group, err := NewStationGroup(g.Group, members)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	p := req.Parameters
	return &Plan{
		RunID:        req.Configuration.ID,
		Name:         req.Configuration.Name,
		ServerNumber: req.Configuration.ServerNumber,
		Timeline:     timeline,
		Parameters: Parameters{
			InboundTime:           time.Duration(p.InboundTime) * time.Second,
			OutboundTime:          time.Duration(p.OutboundTime) * time.Second,
			InboundBinsPerOrder:   p.InboundBinsPerOrder,
			OutboundBinsPerOrder:  p.OutboundBinsPerOrder,
			InboundOrdersPerHour:  p.InboundOrdersPerHour,
			OutboundOrdersPerHour: p.OutboundOrdersPerHour,
			ParetoProbabilities:   p.ParetoProbabilities,
		},
		Stations: stations,
		Groups:   groups,
	}, nil
}
