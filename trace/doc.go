// Package trace implements the event trace codec: the serializer state
// machine that packs bursty, multi-source trigger-and-data events into a
// compact byte stream, the wire protocol it speaks, and the decoder that
// reconstructs a timestamped event timeline from that stream.
//
// The codec has no notion of wall-clock time; timestamps are cycle
// counts relative to whatever clock drives event ingress and the
// serializer (see Analyzer.Tick).
package trace
