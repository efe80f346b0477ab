package wire

// Protocol-fixed constants. These are not user-tunable without peer
// agreement and are never exposed through the config package.
const (
	// MaxPacketSize is the maximum reassembled packet payload.
	MaxPacketSize = 4 * 1024 * 1024

	// MaxFrameSize is the policy value the buffered transport uses when
	// splitting outgoing packets into frames.
	MaxFrameSize = 64 * 1024

	// WriteFlushThreshold is the write-buffer size at which the
	// buffered transport auto-flushes.
	WriteFlushThreshold = 64 * 1024

	// ReadChunkSize is the bulk read size used to refill the transport's
	// read buffer.
	ReadChunkSize = 4 * 1024

	// maxVarintBytes bounds a LEB128 varint encoding of a uint64: 10
	// groups of 7 bits (70 bits) are the fewest that cover all 64 bits.
	maxVarintBytes = 10
)
