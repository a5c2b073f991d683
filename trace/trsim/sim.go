// Package trsim drives a trace.Analyzer and trace.Decoder together,
// one simulated clock cycle at a time, so that test and demo code can
// generate and decode a trace without any real hardware ingress or
// serial sink.
package trsim

import (
	"fmt"

	"eventtrace.dev/trace"
	"eventtrace.dev/trace/trfifo"
)

// Source supplies this cycle's triggers, same contract as
// ingress.Source (duplicated here rather than imported, to keep
// trsim free of a dependency on the ingress package's build tags).
type Source interface {
	Sample(triggers []trace.Trigger) []trace.Trigger
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func(triggers []trace.Trigger) []trace.Trigger

func (f SourceFunc) Sample(triggers []trace.Trigger) []trace.Trigger { return f(triggers) }

// Simulator owns an Analyzer, its output byte queue, and a Decoder
// that consumes that queue as bytes become available, advancing all
// three together one Tick at a time. It is grounded on the
// request/response loop shape of a simulated hardware device, adapted
// from per-command device state transitions to per-cycle
// ingress+serialize+decode.
type Simulator struct {
	analyzer *trace.Analyzer
	decoder  *trace.Decoder
	out      *trfifo.Queue[byte]
	source   Source
	cycle    uint64

	triggerBuf []trace.Trigger
}

// New constructs a Simulator for the given sources, with an output
// queue of the given capacity standing in for the narrow hardware
// byte channel (spec §2). A nil source is never sampled, so the
// simulator simply idles; to deliver triggers by hand, pass an
// *ingress.ManualSource-shaped collaborator and call its Fire.
func New(sources []trace.EventSource, outCapacity int, opts trace.Options, source Source) (*Simulator, error) {
	out := trfifo.New[byte](outCapacity)
	a, err := trace.NewAnalyzer(sources, out, opts)
	if err != nil {
		return nil, fmt.Errorf("trsim: %w", err)
	}
	return &Simulator{
		analyzer: a,
		decoder:  trace.NewDecoder(a.Sources(), trace.DecoderConfig{}),
		out:      out,
		source:   source,
	}, nil
}

// Tick advances the simulation by one cycle: sample the source (if
// any), feed the resulting triggers to the analyzer, then drain any
// bytes the analyzer emitted this cycle into the decoder.
func (s *Simulator) Tick() error {
	s.triggerBuf = s.triggerBuf[:0]
	if s.source != nil {
		s.triggerBuf = s.source.Sample(s.triggerBuf)
	}
	if err := s.analyzer.Tick(s.triggerBuf); err != nil {
		return fmt.Errorf("trsim: cycle %d: %w", s.cycle, err)
	}
	s.cycle++

	var chunk []byte
	for {
		b, ok := s.out.Pop()
		if !ok {
			break
		}
		chunk = append(chunk, b)
	}
	if len(chunk) > 0 {
		if err := s.decoder.Process(chunk); err != nil {
			return fmt.Errorf("trsim: cycle %d: %w", s.cycle, err)
		}
	}
	return nil
}

// Run ticks the simulator until the analyzer has emitted REPORT_DONE
// and the decoder has observed it, or maxCycles is exceeded.
func (s *Simulator) Run(maxCycles int) error {
	for i := 0; i < maxCycles; i++ {
		if err := s.Tick(); err != nil {
			return err
		}
		if s.analyzer.Finished() && s.decoder.IsDone() {
			return nil
		}
	}
	return fmt.Errorf("trsim: analyzer did not finish within %d cycles", maxCycles)
}

// SetDone forwards to the underlying Analyzer.
func (s *Simulator) SetDone(done bool) { s.analyzer.SetDone(done) }

// Analyzer returns the underlying Analyzer, for tests that want
// direct access to its Sources or Finished state.
func (s *Simulator) Analyzer() *trace.Analyzer { return s.analyzer }

// Flush returns newly decoded records accumulated since the last
// Flush call, following trace.Decoder.Flush's force semantics.
func (s *Simulator) Flush(force bool) []trace.Record {
	return s.decoder.Flush(force)
}
