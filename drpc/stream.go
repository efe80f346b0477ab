package drpc

import (
	"encoding/binary"
	"errors"

	"github.com/coregx/drpc/logger"
	"github.com/coregx/drpc/metrics"
	"github.com/coregx/drpc/transport"
	"github.com/coregx/drpc/wire"
)

// Stream is one logical RPC: an ordered, bidirectional sequence of
// packets identified by a stream id. It carries the three write-once
// state axes from spec §3/§4.5 — send, recv, term — each of which is
// assigned at most once and then returned verbatim by every later
// operation that checks it.
type Stream struct {
	id  wire.ID
	tr  *transport.Transport
	enc Encoding
	buf *[]byte // borrowed scratch buffer, owned by the Conn

	sendState error
	recvState error
	termState error

	log     logger.Logger
	metrics *metrics.Recorder
}

// newStream constructs a Stream with the given id (Conn.NewStream
// passes message id 0; the server accept loop passes the Invoke
// packet's id), the caller-supplied transport, encoding, and shared
// scratch buffer. It
// is unexported: callers get Streams from Conn.NewStream or from the
// server accept loop.
func newStream(id wire.ID, tr *transport.Transport, enc Encoding, buf *[]byte, log logger.Logger, m *metrics.Recorder) *Stream {
	return &Stream{id: id, tr: tr, enc: enc, buf: buf, log: log, metrics: m}
}

// ID returns the stream's (stream, message) identifier. Message
// reflects the last packet written, not a fixed value; reads do not
// change it.
func (s *Stream) ID() wire.ID { return s.id }

func setOnce(slot *error, err error) {
	if *slot == nil {
		*slot = err
	}
}

func (s *Stream) setTerm(err error) {
	if s.termState == nil {
		s.termState = err
		s.metrics.StreamClosed(terminationReason(err))
		s.log.Debugw("drpc stream terminated", "stream", s.id.Stream, "reason", err)
	}
}

// terminationReason maps a terminal error to a short, low-cardinality
// label suitable for a metrics label value.
func terminationReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInvoke):
		return "invalid_invoke"
	case errors.Is(err, ErrRemoteClosed):
		return "remote_closed"
	case errors.Is(err, ErrTerminatedBothClosed):
		return "both_closed"
	case errors.Is(err, ErrTerminatedSentClose):
		return "sent_close"
	case errors.Is(err, ErrTerminatedSentError):
		return "sent_error"
	default:
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) {
			return "remote_error"
		}
		var unknownKind *UnknownPacketKind
		if errors.As(err, &unknownKind) {
			return "unknown_kind"
		}
		return "other"
	}
}

// writePacket increments the outgoing message id, splits payload into
// frames bounded by wire.MaxFrameSize, and writes each through the
// transport. It does not flush — callers that need the peer to
// observe the write immediately must call Flush themselves (RecvInto
// and the idempotent terminal operations do).
func (s *Stream) writePacket(kind wire.Kind, payload []byte) error {
	s.id.Message++
	p := wire.Packet{Data: payload, ID: s.id, Kind: kind}

	var err error
	wire.SplitFunc(p, wire.MaxFrameSize, func(f wire.Frame) {
		if err == nil {
			err = s.tr.WriteFrame(f)
		}
	})
	return err
}

// Invoke is the first operation on a freshly constructed stream: it
// writes an Invoke packet carrying rpcName as payload. It does not
// flush.
func (s *Stream) Invoke(rpcName []byte) error {
	return s.writePacket(wire.KindInvoke, rpcName)
}

// Send encodes input with the stream's Encoding and writes it as a
// Message packet. It fails immediately, without writing anything, if
// the send side or the stream is already terminated.
func (s *Stream) Send(input Message) error {
	if s.sendState != nil {
		return s.sendState
	}
	if s.termState != nil {
		return s.termState
	}
	*s.buf = (*s.buf)[:0]
	if err := s.enc.Marshal(input, s.buf); err != nil {
		return err
	}
	return s.writePacket(wire.KindMessage, *s.buf)
}

// RecvInto blocks until the next application Message packet arrives
// on this stream, decoding it into out. It fails immediately if the
// recv side or the stream is already terminated. Before reading, it
// flushes any buffered outgoing writes so the peer has observed them.
//
//nolint:gocyclo // the packet-kind dispatch mirrors the state table in spec §4.5 directly.
func (s *Stream) RecvInto(out Message) error {
	if s.recvState != nil {
		return s.recvState
	}
	if s.termState != nil {
		return s.termState
	}
	if err := s.tr.Flush(); err != nil {
		return err
	}

	for {
		id, kind, err := s.tr.ReadPacketInto(s.buf)
		switch {
		case err != nil && errors.Is(err, transport.ErrRemoteClosed):
			setOnce(&s.recvState, ErrEOF)
			s.setTerm(ErrRemoteClosed)
		case err != nil:
			return err
		case id.Stream != s.id.Stream:
			// Packet for a different stream on the shared transport: drop and keep reading.
		default:
			switch kind {
			case wire.KindMessage:
				return s.enc.Unmarshal(*s.buf, out)
			case wire.KindInvoke:
				s.setTerm(ErrInvalidInvoke)
			case wire.KindError:
				code, msg := parseErrorPayload(*s.buf)
				setOnce(&s.sendState, ErrEOF)
				s.setTerm(&RemoteError{Code: code, Msg: msg})
			case wire.KindClose:
				setOnce(&s.recvState, ErrEOF)
				s.setTerm(ErrRemoteClosed)
			case wire.KindCloseSend:
				setOnce(&s.recvState, ErrEOF)
				if s.sendState != nil {
					s.setTerm(ErrTerminatedBothClosed)
				}
			default:
				s.setTerm(&UnknownPacketKind{Kind: byte(kind)})
			}
		}

		if s.termState != nil {
			return s.termState
		}
		if s.recvState != nil {
			return s.recvState
		}
	}
}

// CloseSend idempotently stops outgoing Message packets on this
// stream while leaving the recv side open. A second call is a no-op
// that returns nil without writing another CloseSend packet.
func (s *Stream) CloseSend() error {
	if s.sendState != nil || s.termState != nil {
		return nil
	}
	setOnce(&s.sendState, ErrSendClosed)
	if s.recvState != nil {
		s.setTerm(ErrTerminatedBothClosed)
	}
	if err := s.writePacket(wire.KindCloseSend, nil); err != nil {
		return err
	}
	return s.tr.Flush()
}

// Close idempotently terminates the stream in both directions. A
// second call is a no-op that returns nil without writing another
// Close packet.
func (s *Stream) Close() error {
	if s.termState != nil {
		return nil
	}
	s.setTerm(ErrTerminatedSentClose)
	if err := s.writePacket(wire.KindClose, nil); err != nil {
		return err
	}
	return s.tr.Flush()
}

// Error idempotently terminates the stream with an Error packet whose
// payload is code (8-byte big-endian) followed by msg (UTF-8). A
// second call is a no-op that returns nil without writing another
// Error packet.
func (s *Stream) Error(msg string, code uint64) error {
	if s.termState != nil {
		return nil
	}
	setOnce(&s.sendState, ErrEOF)
	s.setTerm(ErrTerminatedSentError)

	payload := make([]byte, 8, 8+len(msg))
	binary.BigEndian.PutUint64(payload, code)
	payload = append(payload, msg...)

	if err := s.writePacket(wire.KindError, payload); err != nil {
		return err
	}
	return s.tr.Flush()
}

// parseErrorPayload splits an Error packet's payload into its 8-byte
// big-endian code and UTF-8 message tail. A payload shorter than 8
// bytes (malformed per spec, but the core doesn't reject it outright)
// yields code 0 and the whole payload as the message.
func parseErrorPayload(data []byte) (code uint64, msg string) {
	if len(data) < 8 {
		return 0, string(data)
	}
	return binary.BigEndian.Uint64(data[:8]), string(data[8:])
}
