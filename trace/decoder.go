package trace

import "fmt"

type decoderState int

const (
	decIdle decoderState = iota
	decDelay
	decEvent
	decDone
)

func (s decoderState) String() string {
	switch s {
	case decIdle:
		return "IDLE"
	case decDelay:
		return "DELAY"
	case decEvent:
		return "EVENT"
	case decDone:
		return "DONE"
	default:
		return "?"
	}
}

// DecodeError reports a malformed trace (spec §7): a byte that does
// not match the tag class expected for the decoder's current state,
// or an EVENT header whose source index is out of range.
type DecodeError struct {
	Offset uint64
	Byte   byte
	State  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("trace: malformed trace at byte offset %d: byte %#02x invalid for state %s", e.Offset, e.Byte, e.State)
}

// EventField is one entry of Decoder.Events: the wire name and bit
// width of a reportable field.
type EventField struct {
	Name  string
	Width int
}

// DecoderConfig configures a Decoder at construction time.
type DecoderConfig struct {
	// RelativeTimestamps selects relative timestamp mode (spec
	// §4.5): timestamp is set to the burst's delay rather than
	// accumulated. The default (false) is absolute mode.
	RelativeTimestamps bool
}

// Decoder streams an event trace byte-by-byte (spec §4.5) into an
// ordered Timeline. A Decoder is single-threaded and stateful: feed
// it chunks of arbitrary size via Process, and drain decoded records
// via Flush. It is not safe for concurrent use.
type Decoder struct {
	sources  []EventSource
	relative bool

	state      decoderState
	byteOffset uint64
	timestamp  uint64
	delay      uint64
	eventSrc   int
	eventOff   int
	eventData  uint32

	pendingNames []string
	pendingIdx   map[string]int
	pendingVals  []Value

	timeline []Record
}

// NewDecoder constructs a Decoder for the given registered sources,
// in the same order they were passed to NewAnalyzer.
func NewDecoder(sources []EventSource, cfg DecoderConfig) *Decoder {
	return &Decoder{
		sources:    append([]EventSource(nil), sources...),
		relative:   cfg.RelativeTimestamps,
		state:      decIdle,
		pendingIdx: make(map[string]int),
	}
}

// Events enumerates the (name, width) pairs this decoder may emit,
// per spec §6: a source with Fields yields one entry per field named
// "field-source", widened to the field's width; a source without
// Fields yields one entry under its own name.
func (d *Decoder) Events() []EventField {
	var out []EventField
	for _, s := range d.sources {
		if len(s.Fields) > 0 {
			for _, f := range s.Fields {
				out = append(out, EventField{Name: f.Name + "-" + s.Name, Width: f.Width})
			}
		} else {
			out = append(out, EventField{Name: s.Name, Width: s.Width})
		}
	}
	return out
}

// Process feeds a chunk of trace bytes, of arbitrary length and
// chunk-boundary alignment, into the decoder. It returns a *DecodeError
// on the first malformed byte; the decoder must then be discarded
// (spec §7).
func (d *Decoder) Process(data []byte) error {
	for _, octet := range data {
		isDelay := octet&reportDelayMask == reportDelay
		isEvent := octet&reportEventMask == reportEvent
		isDone := octet&reportDoneMask == reportDone

		switch {
		case d.state == decIdle && isDelay:
			d.state = decDelay
			d.delay = uint64(octet &^ reportDelayMask)

		case d.state == decDelay && isDelay:
			d.delay = (d.delay << 7) | uint64(octet&^reportDelayMask)

		case (d.state == decIdle || d.state == decDelay) && isEvent:
			if err := d.beginEvent(octet); err != nil {
				return err
			}

		case d.state == decEvent:
			d.consumeEventByte(octet)

		case d.state == decIdle && isDone:
			d.state = decDone

		default:
			return &DecodeError{Offset: d.byteOffset, Byte: octet, State: d.state.String()}
		}

		d.byteOffset++
	}
	return nil
}

func (d *Decoder) beginEvent(octet byte) error {
	if d.delay > 0 {
		d.flushPending()
		if d.relative {
			d.timestamp = d.delay
		} else {
			d.timestamp += d.delay
		}
		d.delay = 0
	}

	idx := int(octet &^ reportEventMask)
	if idx >= len(d.sources) {
		return &DecodeError{Offset: d.byteOffset, Byte: octet, State: decIdle.String()}
	}
	d.eventSrc = idx
	src := d.sources[idx]
	if src.Width == 0 {
		d.recordPending(src.Name, Value{})
		d.state = decIdle
		return nil
	}
	d.eventOff = src.Width
	d.eventData = 0
	d.state = decEvent
	return nil
}

func (d *Decoder) consumeEventByte(octet byte) {
	d.eventData = (d.eventData << 8) | uint32(octet)
	if d.eventOff > 8 {
		d.eventOff -= 8
		return
	}

	src := d.sources[d.eventSrc]
	if len(src.Fields) > 0 {
		offset := 0
		for _, f := range src.Fields {
			v := (d.eventData >> uint(offset)) & widthMask(f.Width)
			d.recordPending(f.Name+"-"+src.Name, Value{Present: true, N: v})
			offset += f.Width
		}
	} else {
		d.recordPending(src.Name, Value{Present: true, N: d.eventData})
	}
	d.state = decIdle
}

func (d *Decoder) recordPending(name string, v Value) {
	if idx, ok := d.pendingIdx[name]; ok {
		d.pendingVals[idx] = v
		return
	}
	d.pendingIdx[name] = len(d.pendingNames)
	d.pendingNames = append(d.pendingNames, name)
	d.pendingVals = append(d.pendingVals, v)
}

func (d *Decoder) pendingEmpty() bool {
	return len(d.pendingNames) == 0
}

func (d *Decoder) flushPending() {
	if d.pendingEmpty() {
		return
	}
	rec := Record{Timestamp: d.timestamp, Fields: make([]FieldValue, len(d.pendingNames))}
	for i, name := range d.pendingNames {
		rec.Fields[i] = FieldValue{Name: name, Value: d.pendingVals[i]}
	}
	d.timeline = append(d.timeline, rec)
	d.pendingNames = d.pendingNames[:0]
	d.pendingVals = d.pendingVals[:0]
	for k := range d.pendingIdx {
		delete(d.pendingIdx, k)
	}
}

// Flush returns the timeline accumulated since the start of decoding
// or the previous Flush, and empties it. If force is true and pending
// (not-yet-timestamped) events remain, or the stream has ended, they
// are appended under the current timestamp first; per spec §6, a
// later Flush may then produce a duplicate timestamp if more events
// at the same original time arrive afterward.
func (d *Decoder) Flush(force bool) []Record {
	if (force && !d.pendingEmpty()) || d.state == decDone {
		d.flushPending()
	}
	out := d.timeline
	d.timeline = nil
	return out
}

// IsDone reports whether the decoder has consumed a REPORT_DONE byte.
func (d *Decoder) IsDone() bool {
	return d.state == decDone
}

// ByteOffset returns the number of bytes processed so far, for
// diagnostics.
func (d *Decoder) ByteOffset() uint64 {
	return d.byteOffset
}
