// Package ingress implements event sources that feed a trace.Analyzer:
// real GPIO pins sampled through periph.io, and a manual source for
// tests and simulation.
package ingress

import "eventtrace.dev/trace"

// Source produces the triggers for one simulated clock cycle. Sample
// is called once per cycle by a driver loop (see trace/trsim); it
// must not block.
type Source interface {
	// Sample appends this cycle's triggers (if any) to triggers and
	// returns the result, following the append(a, ...) convention so
	// callers can reuse a backing array across cycles.
	Sample(triggers []trace.Trigger) []trace.Trigger
}
