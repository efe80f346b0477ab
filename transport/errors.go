package transport

import "errors"

// Transport errors. Once any of these is recorded by a Transport, it
// is sticky: every subsequent operation on that Transport returns the
// same error without further I/O.
var (
	// ErrRemoteClosed means the underlying channel reported EOF
	// (a zero-byte read).
	ErrRemoteClosed = errors.New("transport: remote closed")

	// ErrIDMonotonicity means a frame arrived whose ID is less than the
	// packet currently being reassembled.
	ErrIDMonotonicity = errors.New("transport: packet id went backwards")

	// ErrPacketKindChange means two frames with the same non-final ID
	// carried different Kinds.
	ErrPacketKindChange = errors.New("transport: packet kind changed mid-reassembly")

	// ErrDataOverflow means a reassembled packet exceeded the maximum
	// payload size.
	ErrDataOverflow = errors.New("transport: packet exceeds maximum size")
)
