// Package wire implements the on-wire framing format for the drpc
// streaming transport: varint integers, frames, packets, and the
// packet splitter. Everything in this package is pure and allocates
// only what the caller's buffers require; no I/O happens here.
package wire

import "fmt"

// ID identifies a logical packet: which stream it belongs to and its
// position within that stream's message sequence. IDs order
// lexicographically by (Stream, Message).
type ID struct {
	Stream  uint64
	Message uint64
}

// Less reports whether id comes strictly before other in the
// lexicographic (Stream, Message) ordering used for monotonicity
// checks in the buffered transport.
func (id ID) Less(other ID) bool {
	if id.Stream != other.Stream {
		return id.Stream < other.Stream
	}
	return id.Message < other.Message
}

func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.Stream, id.Message)
}
