package trace

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Value is a decoded field value. A bare event (source width 0)
// decodes to a Value with Present false, mirroring the original
// gateware decoder's use of None for such fields (see SPEC_FULL.md,
// SUPPLEMENTED FEATURES).
type Value struct {
	Present bool
	N       uint32
}

func (v Value) String() string {
	if !v.Present {
		return "<none>"
	}
	return fmt.Sprintf("%d", v.N)
}

// FieldValue is one entry of a Record's field map, in the order it
// was first observed within the burst.
type FieldValue struct {
	Name  string
	Value Value
}

// Record is one timeline entry: the set of fields reported for a
// single timestamp (spec §3, "Timeline record"). Fields preserves
// insertion order, matching the decoder's pending map.
type Record struct {
	Timestamp uint64
	Fields    []FieldValue
}

// Map returns the record's fields as a map, for convenience in tests
// and callers that don't care about field order.
func (r Record) Map() map[string]Value {
	m := make(map[string]Value, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// Get returns the value recorded for name and whether it was present
// in this record at all.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// wireRecord is the CBOR encoding of a Record. It is kept separate
// from the public type so a Value with Present false can collapse to
// CBOR null instead of carrying a redundant presence flag on the wire.
type wireRecord struct {
	_      struct{} `cbor:",toarray"`
	Time   uint64
	Names  []string
	Values []*uint32
}

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// MarshalTimelineCBOR encodes a decoded timeline as CBOR, the same way
// a host tool persists other small, schema-light structures for later
// replay without re-parsing a raw byte stream.
func MarshalTimelineCBOR(records []Record) ([]byte, error) {
	wire := make([]wireRecord, len(records))
	for i, r := range records {
		w := wireRecord{Time: r.Timestamp}
		w.Names = make([]string, len(r.Fields))
		w.Values = make([]*uint32, len(r.Fields))
		for j, f := range r.Fields {
			w.Names[j] = f.Name
			if f.Value.Present {
				n := f.Value.N
				w.Values[j] = &n
			}
		}
		wire[i] = w
	}
	b, err := encMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("trace: marshal timeline: %w", err)
	}
	return b, nil
}

// UnmarshalTimelineCBOR decodes a timeline previously produced by
// MarshalTimelineCBOR.
func UnmarshalTimelineCBOR(data []byte) ([]Record, error) {
	var wire []wireRecord
	if err := decMode.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("trace: unmarshal timeline: %w", err)
	}
	records := make([]Record, len(wire))
	for i, w := range wire {
		r := Record{Timestamp: w.Time, Fields: make([]FieldValue, len(w.Names))}
		for j, name := range w.Names {
			v := Value{}
			if w.Values[j] != nil {
				v = Value{Present: true, N: *w.Values[j]}
			}
			r.Fields[j] = FieldValue{Name: name, Value: v}
		}
		records[i] = r
	}
	return records, nil
}
