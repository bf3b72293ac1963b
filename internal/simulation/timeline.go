package simulation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeline is returned for a malformed duration string.
var ErrInvalidTimeline = errors.New("invalid duration string")

// OperationKind is the phase an Operation puts the simulation in.
type OperationKind string

const (
	Normal       OperationKind = "N"
	AdvanceOrder OperationKind = "AO"
)

// Operation is one phase of the timeline.
type Operation struct {
	Kind     OperationKind
	Duration time.Duration
}

func (o Operation) String() string {
	return fmt.Sprintf("%s%d", o.Kind, int64(o.Duration/time.Second))
}

// Timeline is the ordered list of operations of a run. A parsed Timeline is
// never empty.
type Timeline []Operation

// ParseTimeline parses a duration string such as "N800;AO1000;N500".
// Segments are separated by ';', each is a kind followed by whole seconds.
func ParseTimeline(s string) (Timeline, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTimeline)
	}

	var timeline Timeline
	for i, raw := range strings.Split(s, ";") {
		segment := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))

		split := strings.IndexFunc(segment, func(r rune) bool { return r >= '0' && r <= '9' })
		if split <= 0 {
			return nil, fmt.Errorf("%w: segment %d %q", ErrInvalidTimeline, i+1, raw)
		}

		kind := OperationKind(segment[:split])
		if kind != Normal && kind != AdvanceOrder {
			return nil, fmt.Errorf("%w: segment %d has unknown kind %q", ErrInvalidTimeline, i+1, kind)
		}

		seconds, err := strconv.Atoi(segment[split:])
		if err != nil || seconds < 0 {
			return nil, fmt.Errorf("%w: segment %d has invalid seconds %q", ErrInvalidTimeline, i+1, segment[split:])
		}

		timeline = append(timeline, Operation{Kind: kind, Duration: time.Duration(seconds) * time.Second})
	}
	return timeline, nil
}

// Total is the planned length of the run.
func (t Timeline) Total() time.Duration {
	var total time.Duration
	for _, op := range t {
		total += op.Duration
	}
	return total
}

// Current returns the operation active after elapsed time and its index:
// the first operation whose cumulative end lies after elapsed, or the last
// operation once the timeline is exhausted.
//
// The timeline must not be empty.
func (t Timeline) Current(elapsed time.Duration) (Operation, int) {
	var cumulative time.Duration
	for i, op := range t {
		cumulative += op.Duration
		if elapsed < cumulative {
			return op, i
		}
	}
	last := len(t) - 1
	return t[last], last
}

// EndOf is the offset from run start at which operation idx ends.
func (t Timeline) EndOf(idx int) time.Duration {
	var end time.Duration
	for i := 0; i <= idx && i < len(t); i++ {
		end += t[i].Duration
	}
	return end
}

// Window is a time span relative to the run start.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Windows returns the spans of all operations of the given kind.
func (t Timeline) Windows(kind OperationKind) []Window {
	var windows []Window
	var offset time.Duration
	for _, op := range t {
		if op.Kind == kind {
			windows = append(windows, Window{Start: offset, End: offset + op.Duration})
		}
		offset += op.Duration
	}
	return windows
}

func (t Timeline) String() string {
	parts := make([]string, len(t))
	for i, op := range t {
		parts[i] = op.String()
	}
	return strings.Join(parts, ";")
}
