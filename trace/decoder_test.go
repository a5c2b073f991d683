package trace

import (
	"testing"

	"eventtrace.dev/trace/trfifo"
)

func TestDecoderEvents(t *testing.T) {
	sources := []EventSource{
		{Name: "btn", Width: 0},
		{Name: "adc", Width: 12},
		{Name: "gpio", Width: 3, Fields: []Field{{Name: "a", Width: 1}, {Name: "b", Width: 2}}},
	}
	d := NewDecoder(sources, DecoderConfig{})
	got := d.Events()
	want := []EventField{
		{Name: "btn", Width: 0},
		{Name: "adc", Width: 12},
		{Name: "a-gpio", Width: 1},
		{Name: "b-gpio", Width: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("Events() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Events()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// Round-trips one analyzer-produced trace through a decoder and checks
// the resulting timeline, feeding the bytes in arbitrarily small
// chunks to exercise chunk-boundary independence (spec §4.5: Process
// must behave the same regardless of how the caller slices the byte
// stream).
func TestDecoderChunking(t *testing.T) {
	sink := trfifo.New[byte](64)
	a := mustAnalyzer(t, []EventSource{{Name: "0", Width: 8}, {Name: "1", Width: 0}}, sink, Options{})

	tickIdle(t, a, 1)
	a.Tick([]Trigger{{Source: 0, Data: 0x42}})
	for i := 0; i < 8; i++ {
		a.Tick(nil)
	}
	a.SetDone(true)
	for i := 0; i < 16 && !a.Finished(); i++ {
		a.Tick(nil)
	}
	data := drain(t, sink)

	for chunk := 1; chunk <= len(data); chunk++ {
		t.Run("", func(t *testing.T) {
			dec := NewDecoder(a.Sources(), DecoderConfig{})
			for i := 0; i < len(data); i += chunk {
				end := i + chunk
				if end > len(data) {
					end = len(data)
				}
				if err := dec.Process(data[i:end]); err != nil {
					t.Fatalf("chunk size %d: Process: %v", chunk, err)
				}
			}
			records := dec.Flush(true)
			if len(records) != 1 {
				t.Fatalf("chunk size %d: got %d records, want 1", chunk, len(records))
			}
			if !dec.IsDone() {
				t.Fatalf("chunk size %d: decoder not done", chunk)
			}
			rec := records[0]
			if rec.Timestamp != 2 {
				t.Errorf("chunk size %d: timestamp = %d, want 2", chunk, rec.Timestamp)
			}
			v, ok := rec.Get("0")
			if !ok || !v.Present || v.N != 0x42 {
				t.Errorf("chunk size %d: field \"0\" = %+v, ok=%v", chunk, v, ok)
			}
		})
	}
}

func TestDecoderRelativeTimestamps(t *testing.T) {
	sink := trfifo.New[byte](64)
	a := mustAnalyzer(t, []EventSource{{Name: "0", Width: 1}}, sink, Options{})

	tickIdle(t, a, 1)
	a.Tick([]Trigger{{Source: 0, Data: 1}})
	for i := 0; i < 8; i++ {
		a.Tick(nil)
	}
	tickIdle(t, a, 2)
	a.Tick([]Trigger{{Source: 0, Data: 0}})
	for i := 0; i < 8; i++ {
		a.Tick(nil)
	}
	data := drain(t, sink)

	abs := NewDecoder(a.Sources(), DecoderConfig{})
	if err := abs.Process(data); err != nil {
		t.Fatal(err)
	}
	absRecords := abs.Flush(true)
	if len(absRecords) != 2 {
		t.Fatalf("absolute: got %d records, want 2", len(absRecords))
	}
	if absRecords[1].Timestamp <= absRecords[0].Timestamp {
		t.Errorf("absolute timestamps not monotone: %+v", absRecords)
	}

	rel := NewDecoder(a.Sources(), DecoderConfig{RelativeTimestamps: true})
	if err := rel.Process(data); err != nil {
		t.Fatal(err)
	}
	relRecords := rel.Flush(true)
	if len(relRecords) != 2 {
		t.Fatalf("relative: got %d records, want 2", len(relRecords))
	}
	if relRecords[0].Timestamp != absRecords[0].Timestamp {
		t.Errorf("relative first timestamp = %d, want %d (equal to absolute delay)", relRecords[0].Timestamp, absRecords[0].Timestamp)
	}
}

func TestDecoderMalformedTrace(t *testing.T) {
	sources := []EventSource{{Name: "0", Width: 8}}

	t.Run("event source index out of range", func(t *testing.T) {
		dec := NewDecoder(sources, DecoderConfig{})
		err := dec.Process([]byte{reportEvent | 1, 0xaa})
		if err == nil {
			t.Fatal("expected error for out-of-range source index")
		}
		if _, ok := err.(*DecodeError); !ok {
			t.Fatalf("expected *DecodeError, got %T", err)
		}
	})

	t.Run("tag-shaped byte consumed as raw event data", func(t *testing.T) {
		// Once an EVENT header selects a width-8 source, the single
		// following byte is raw payload: it is consumed positionally,
		// not matched against the tag classes, even though 0x00 also
		// happens to be the DONE byte.
		dec := NewDecoder(sources, DecoderConfig{})
		if err := dec.Process([]byte{reportEvent | 0, reportDone}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		records := dec.Flush(true)
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}
		v, ok := records[0].Get("0")
		if !ok || !v.Present || v.N != 0 {
			t.Errorf("field \"0\" = %+v, ok=%v, want present 0", v, ok)
		}
	})

	t.Run("done byte after delay", func(t *testing.T) {
		dec := NewDecoder(sources, DecoderConfig{})
		err := dec.Process([]byte{reportDelay | 3, reportDone})
		if err == nil {
			t.Fatal("expected error: DONE may not follow an unflushed DELAY")
		}
	})
}
