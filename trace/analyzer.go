package trace

import (
	"errors"
	"fmt"
	"math/bits"

	"eventtrace.dev/trace/trfifo"
)

const defaultDelayWidth = 16

// ByteSink is the narrow, 8-bit-wide outbound channel the serializer
// drains into (spec §2, §4.3). A sink must report Writable() false
// whenever it cannot accept another byte this cycle; the serializer
// stalls in place rather than drop or buffer past it.
//
// *trfifo.Queue[byte] implements ByteSink.
type ByteSink interface {
	Writable() bool
	Push(b byte) bool
}

// Trigger is one source asserting its trigger bit (and, for
// non-bare sources, its data word) on a single ingress cycle.
type Trigger struct {
	Source int
	Data   uint32
}

// Options configures an Analyzer at construction time.
type Options struct {
	// DelayWidth is the bit width of the delay counter (spec §3,
	// §4.2). Zero selects the default of 16.
	DelayWidth int
	// EventDepth overrides the shared depth of the event-mask and
	// delay FIFOs. Zero selects the default from spec §4.1:
	// min(DepthForWidth(N), DepthForWidth(DelayWidth)).
	EventDepth int
}

type serializerState int

const (
	stateWaitEvent serializerState = iota
	stateReportDelay
	stateReportDelay5
	stateReportDelay4
	stateReportDelay3
	stateReportDelay2
	stateReportDelay1
	stateReportEvent
	stateReportEventData4
	stateReportEventData3
	stateReportEventData2
	stateReportEventData1
	stateReportDone
	stateDone
)

// delayStateForSeptet returns the REPORT-DELAY-k state for septet
// index k in [1,5].
func delayStateForSeptet(k int) serializerState {
	return stateReportDelay1 - serializerState(k-1)
}

// delaySeptetOfState returns k for a REPORT-DELAY-k state.
func delaySeptetOfState(s serializerState) int {
	return int(stateReportDelay1-s) + 1
}

func eventDataStateForOctet(k int) serializerState {
	return stateReportEventData1 - serializerState(k-1)
}

func eventOctetOfState(s serializerState) int {
	return int(stateReportEventData1-s) + 1
}

// Analyzer is the serializer state machine of spec §4.3, together
// with the event-mask, per-source data, and delay FIFOs it drains
// (spec §4.1, §4.2). A single instance is not safe for concurrent
// use; Tick must be called once per simulated clock cycle, matching
// the single-clock synchronous hardware it models (spec §5).
type Analyzer struct {
	sources    []EventSource
	delayWidth int
	delayMax   uint64
	out        ByteSink

	eventMaskFIFO *trfifo.Queue[uint64]
	delayFIFO     *trfifo.Queue[uint64]
	dataFIFOs     []*trfifo.Queue[uint32]

	delayTimer       uint64
	delayAccumulator uint64
	eventPending     uint64
	eventData        uint32
	state            serializerState
	done             bool
}

// NewAnalyzer validates sources and constructs an Analyzer draining
// into sink. It corresponds to the gateware's do_finalize: the
// preconditions of spec §3 ("N < 64", "max width <= 32", field widths
// summing to the payload) are checked once, here, and fail fast.
func NewAnalyzer(sources []EventSource, sink ByteSink, opts Options) (*Analyzer, error) {
	if sink == nil {
		return nil, errors.New("trace: sink must not be nil")
	}
	if len(sources) >= 64 {
		return nil, fmt.Errorf("trace: %d event sources registered, must be < 64", len(sources))
	}
	delayWidth := opts.DelayWidth
	if delayWidth == 0 {
		delayWidth = defaultDelayWidth
	}
	if delayWidth < 1 || delayWidth > 32 {
		return nil, fmt.Errorf("trace: delay width %d out of range [1,32]", delayWidth)
	}

	srcs := append([]EventSource(nil), sources...)
	seenNames := make(map[string]bool, len(srcs))
	for i := range srcs {
		s := &srcs[i]
		if seenNames[s.Name] {
			return nil, fmt.Errorf("trace: duplicate event source name %q", s.Name)
		}
		seenNames[s.Name] = true
		if s.Width < 0 || s.Width > 32 {
			return nil, fmt.Errorf("trace: event source %q width %d out of range [0,32]", s.Name, s.Width)
		}
		if len(s.Fields) > 0 {
			sum := 0
			for _, f := range s.Fields {
				sum += f.Width
			}
			if sum != s.Width {
				return nil, fmt.Errorf("trace: event source %q field widths sum to %d, want %d", s.Name, sum, s.Width)
			}
		}
		if s.Depth == 0 {
			s.Depth = DepthForWidth(s.Width)
		}
	}

	eventDepth := opts.EventDepth
	if eventDepth == 0 {
		eventDepth = minInt(DepthForWidth(len(srcs)), DepthForWidth(delayWidth))
	}

	dataFIFOs := make([]*trfifo.Queue[uint32], len(srcs))
	for i, s := range srcs {
		if s.Width > 0 {
			dataFIFOs[i] = trfifo.New[uint32](s.Depth)
		}
	}

	return &Analyzer{
		sources:       srcs,
		delayWidth:    delayWidth,
		delayMax:      (uint64(1) << uint(delayWidth)) - 1,
		out:           sink,
		eventMaskFIFO: trfifo.New[uint64](eventDepth),
		delayFIFO:     trfifo.New[uint64](eventDepth),
		dataFIFOs:     dataFIFOs,
		state:         stateWaitEvent,
		delayTimer:    1, // spec §3: reset value is 1
	}, nil
}

// Sources returns the registered event sources, in registration
// (wire-index) order.
func (a *Analyzer) Sources() []EventSource {
	return append([]EventSource(nil), a.sources...)
}

// SetDone asserts or de-asserts the done flag (spec §4.3, §5). While
// asserted and once drained, the serializer emits a single REPORT_DONE
// byte and parks in DONE; de-asserting re-arms it for a fresh trace.
func (a *Analyzer) SetDone(done bool) {
	a.done = done
}

// Finished reports whether the serializer has emitted REPORT_DONE and
// is parked in its DONE state.
func (a *Analyzer) Finished() bool {
	return a.state == stateDone
}

// Tick advances the analyzer by exactly one clock cycle: event
// ingress (spec §4.1, §4.2) for the given triggers, then one
// serializer state transition (spec §4.3). Triggers lists every
// source whose trigger bit is asserted this cycle; sources absent
// from it are not triggered. It is an error for two entries to name
// the same source, or for a source index to be out of range.
func (a *Analyzer) Tick(triggers []Trigger) error {
	if err := a.ingress(triggers); err != nil {
		return err
	}
	a.step()
	return nil
}

func (a *Analyzer) ingress(triggers []Trigger) error {
	var mask uint64
	seen := make(map[int]bool, len(triggers))
	for _, t := range triggers {
		if t.Source < 0 || t.Source >= len(a.sources) {
			return fmt.Errorf("trace: trigger source index %d out of range [0,%d)", t.Source, len(a.sources))
		}
		if seen[t.Source] {
			return fmt.Errorf("trace: source %d triggered twice in the same cycle", t.Source)
		}
		seen[t.Source] = true
		mask |= uint64(1) << uint(t.Source)
		src := a.sources[t.Source]
		if src.Width > 0 {
			if !a.dataFIFOs[t.Source].Push(t.Data & widthMask(src.Width)) {
				return fmt.Errorf("trace: data FIFO overflow for event source %q", src.Name)
			}
		}
	}

	we := mask != 0
	if we {
		if !a.eventMaskFIFO.Push(mask) {
			return errors.New("trace: event-mask FIFO overflow")
		}
	}

	// Delay counter management (spec §4.2).
	if we || a.delayTimer == a.delayMax {
		if !a.delayFIFO.Push(a.delayTimer) {
			return errors.New("trace: delay FIFO overflow")
		}
		a.delayTimer = 1
	} else {
		a.delayTimer++
	}
	return nil
}

// step advances the serializer state machine by exactly one state
// transition (spec §4.3).
func (a *Analyzer) step() {
	switch a.state {
	case stateWaitEvent:
		if d, ok := a.delayFIFO.Pop(); ok {
			a.delayAccumulator = (a.delayAccumulator + d) & delayAccumulatorMask
		}
		if m, ok := a.eventMaskFIFO.Pop(); ok {
			a.eventPending = m
			if m != 0 {
				a.state = stateReportDelay
				return
			}
		}
		if !a.delayFIFO.Readable() && !a.eventMaskFIFO.Readable() && a.done {
			a.state = stateReportDone
		}

	case stateReportDelay:
		a.state = delayStateForSeptet(septetsNeeded(a.delayAccumulator))

	case stateReportDelay5, stateReportDelay4, stateReportDelay3, stateReportDelay2, stateReportDelay1:
		if !a.out.Writable() {
			return
		}
		k := delaySeptetOfState(a.state)
		septet := byte((a.delayAccumulator >> uint((k-1)*7)) & 0x7f)
		a.out.Push(reportDelay | septet)
		if k == 1 {
			a.delayAccumulator = 0
			a.state = stateReportEvent
		} else {
			a.state = delayStateForSeptet(k - 1)
		}

	case stateReportEvent:
		if !a.out.Writable() {
			return
		}
		i := bits.TrailingZeros64(a.eventPending)
		a.out.Push(reportEvent | byte(i))
		a.eventPending &^= uint64(1) << uint(i)
		src := a.sources[i]
		if src.Width > 0 {
			v, _ := a.dataFIFOs[i].Pop()
			a.eventData = v
		} else {
			a.eventData = 0
		}
		switch octetsForWidth(src.Width) {
		case 4:
			a.state = stateReportEventData4
		case 3:
			a.state = stateReportEventData3
		case 2:
			a.state = stateReportEventData2
		case 1:
			a.state = stateReportEventData1
		default:
			a.state = a.nextAfterEvent()
		}

	case stateReportEventData4, stateReportEventData3, stateReportEventData2, stateReportEventData1:
		if !a.out.Writable() {
			return
		}
		k := eventOctetOfState(a.state)
		a.out.Push(byte(a.eventData >> uint((k-1)*8)))
		if k == 1 {
			a.state = a.nextAfterEvent()
		} else {
			a.state = eventDataStateForOctet(k - 1)
		}

	case stateReportDone:
		if !a.out.Writable() {
			return
		}
		a.out.Push(reportDone)
		a.state = stateDone

	case stateDone:
		if !a.done {
			a.state = stateWaitEvent
		}
	}
}

func (a *Analyzer) nextAfterEvent() serializerState {
	if a.eventPending != 0 {
		return stateReportEvent
	}
	return stateWaitEvent
}
