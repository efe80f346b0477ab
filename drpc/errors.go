package drpc

import (
	"errors"
	"fmt"
)

// Stream state errors (spec §7 "state errors"). Each is assigned to at
// most one of a Stream's three write-once axes (send, recv, term) and
// is then returned verbatim by every later operation touching that
// axis.
var (
	// ErrEOF marks an axis closed by a generic EOF-like event: the send
	// side after a local Error() or a received Error packet, the recv
	// side after a received Close or CloseSend packet or a remote close
	// of the transport. The wire format only distinguishes "closed" from
	// "open" per axis, so ErrEOF is the shared marker for "this axis will
	// produce/accept no more packets."
	ErrEOF = errors.New("drpc: eof")

	// ErrInvalidInvoke means an Invoke packet arrived on a stream that
	// was already open.
	ErrInvalidInvoke = errors.New("drpc: invoke received on an already-open stream")

	// ErrRemoteClosed means the peer sent a Close packet, or the
	// underlying transport reported the remote end closed.
	ErrRemoteClosed = errors.New("drpc: stream closed by remote")

	// ErrSendClosed means the local side called CloseSend.
	ErrSendClosed = errors.New("drpc: send side closed locally")

	// ErrTerminatedBothClosed means both send and recv axes closed
	// (via any combination of local/remote close or close-send) without
	// either side ever sending an Error or Close packet.
	ErrTerminatedBothClosed = errors.New("drpc: stream terminated: both directions closed")

	// ErrTerminatedSentClose means the local side called Close.
	ErrTerminatedSentClose = errors.New("drpc: stream terminated: local close")

	// ErrTerminatedSentError means the local side called Error.
	ErrTerminatedSentError = errors.New("drpc: stream terminated: local error")
)

// UnknownPacketKind is the terminal state set when a packet arrives
// whose Kind the stream engine does not recognize.
type UnknownPacketKind struct {
	Kind byte
}

func (e *UnknownPacketKind) Error() string {
	return fmt.Sprintf("drpc: unknown packet kind %d", e.Kind)
}

// RemoteError is the terminal state set when the peer sends an Error
// packet. Code and Msg are exactly the 8-byte big-endian code and
// UTF-8 message carried in the packet's payload.
type RemoteError struct {
	Code uint64
	Msg  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("drpc: remote error %d: %s", e.Code, e.Msg)
}

// autoErrorCode is the hard-coded code the server accept loop uses
// when transmitting a dispatcher error to the peer (spec §4.7, §9 open
// question: "no taxonomy of codes is defined by the protocol").
const autoErrorCode = 10
