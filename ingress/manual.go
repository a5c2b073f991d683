package ingress

import "eventtrace.dev/trace"

// ManualSource is a software-only Source for tests and simulation: it
// replays a caller-supplied trigger list for exactly one Sample call,
// then goes quiet until refilled. It stands in for real hardware
// registers the way an in-memory command log stands in for a physical
// device under test.
type ManualSource struct {
	pending []trace.Trigger
}

// Fire queues triggers to be returned by the next Sample call.
func (m *ManualSource) Fire(triggers ...trace.Trigger) {
	m.pending = append(m.pending, triggers...)
}

// Sample returns and clears the queued triggers.
func (m *ManualSource) Sample(triggers []trace.Trigger) []trace.Trigger {
	if len(m.pending) == 0 {
		return triggers
	}
	triggers = append(triggers, m.pending...)
	m.pending = m.pending[:0]
	return triggers
}
