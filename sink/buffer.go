package sink

import "eventtrace.dev/trace/trfifo"

// BufferSink is an in-memory trace.ByteSink backed by a bounded
// ring buffer, for tests and local simulation that have no real
// serial link.
type BufferSink struct {
	q *trfifo.Queue[byte]
}

// NewBuffer returns a BufferSink with room for capacity bytes.
func NewBuffer(capacity int) *BufferSink {
	return &BufferSink{q: trfifo.New[byte](capacity)}
}

// Writable reports whether Push will succeed.
func (b *BufferSink) Writable() bool { return b.q.Writable() }

// Push enqueues a byte, returning false if the buffer is full.
func (b *BufferSink) Push(v byte) bool { return b.q.Push(v) }

// Drain pops and returns every buffered byte, oldest first.
func (b *BufferSink) Drain() []byte {
	var out []byte
	for {
		v, ok := b.q.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
