// Package transport implements the buffered duplex-channel wrapper
// described in spec §4.4: frame reassembly into packets on read,
// write batching with an automatic flush threshold, and sticky error
// semantics shared by every operation on one Transport.
package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/coregx/drpc/logger"
	"github.com/coregx/drpc/metrics"
	"github.com/coregx/drpc/wire"
)

// smallHeaderCap bounds a frame header (1 byte + up to three 10-byte
// varints) so the read buffer cap can be expressed as a fixed margin
// over the maximum packet size.
const smallHeaderCap = 1 + 10 + 10 + 10

// flusher is implemented by duplex channels that want an explicit
// flush call after a batch write (e.g. *bufio.Writer-backed
// implementations); channels that don't implement it are assumed to
// flush synchronously on Write.
type flusher interface {
	Flush() error
}

// Option configures a Transport at construction time.
type Option func(*Transport)

// WithLogger attaches a logger.Logger for sticky-error and
// frame-level diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(t *Transport) { t.log = l }
}

// WithMetrics attaches a metrics.Recorder. A nil Recorder (the
// default) disables metrics entirely.
func WithMetrics(m *metrics.Recorder) Option {
	return func(t *Transport) { t.metrics = m }
}

// Transport wraps a duplex byte channel (conn) with a write batch
// buffer and a read reassembly buffer. All operations are sticky:
// once any one of them fails, every subsequent operation returns the
// same error without touching conn again.
type Transport struct {
	conn io.ReadWriteCloser

	readBuf  []byte
	writeBuf []byte

	curID   wire.ID
	curKind wire.Kind
	curSet  bool

	err error

	log     logger.Logger
	metrics *metrics.Recorder
}

// New wraps conn in a Transport.
func New(conn io.ReadWriteCloser, opts ...Option) *Transport {
	t := &Transport{conn: conn}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// fail records err as the sticky error if one isn't already set, logs
// it, and returns the (possibly earlier) sticky error.
func (t *Transport) fail(err error) error {
	if t.err == nil {
		t.err = err
		t.metrics.TransportError()
		t.log.Warnw("drpc transport failed", "error", err)
	}
	return t.err
}

// ReadPacketInto reassembles the next packet into *out, returning its
// ID and Kind. *out is cleared at the start of the call. Frames
// carrying the Control bit are skipped entirely; a control frame never
// completes or starts a reassembled packet.
//
// The ID/Kind "current" tracking persists across calls so that
// monotonicity (§ID monotonicity) and kind stability are enforced for
// the lifetime of the Transport, not just within one call.
func (t *Transport) ReadPacketInto(out *[]byte) (wire.ID, wire.Kind, error) {
	if t.err != nil {
		return wire.ID{}, 0, t.err
	}
	*out = (*out)[:0]

	for {
		f, err := t.nextFrame()
		if err != nil {
			return wire.ID{}, 0, err
		}
		if f.Control {
			continue
		}

		switch {
		case !t.curSet:
			t.curID, t.curKind, t.curSet = f.ID, f.Kind, true
		case f.ID.Less(t.curID):
			return wire.ID{}, 0, t.fail(ErrIDMonotonicity)
		case t.curID.Less(f.ID):
			t.curID, t.curKind = f.ID, f.Kind
			*out = (*out)[:0]
		case f.Kind != t.curKind:
			return wire.ID{}, 0, t.fail(ErrPacketKindChange)
		}

		*out = append(*out, f.Data...)
		if len(*out) > wire.MaxPacketSize {
			return wire.ID{}, 0, t.fail(ErrDataOverflow)
		}
		t.metrics.FrameRead(len(f.Data))

		if f.Done {
			return t.curID, t.curKind, nil
		}
	}
}

// nextFrame parses one frame out of the read buffer, refilling from
// conn with ReadChunkSize bulk reads as needed.
func (t *Transport) nextFrame() (wire.Frame, error) {
	for {
		f, n, err := wire.ParseFrame(t.readBuf)
		if err == nil {
			t.readBuf = t.readBuf[n:]
			return f, nil
		}
		if !errors.Is(err, wire.ErrNotEnoughData) {
			return wire.Frame{}, t.fail(fmt.Errorf("transport: %w", err))
		}
		if len(t.readBuf) > wire.MaxPacketSize+smallHeaderCap {
			return wire.Frame{}, t.fail(ErrDataOverflow)
		}
		if err := t.fill(); err != nil {
			return wire.Frame{}, err
		}
	}
}

// fill performs one bulk read and appends whatever bytes came back to
// the read buffer, per the duplex channel contract: a zero-byte read
// means the remote closed its side.
func (t *Transport) fill() error {
	chunk := make([]byte, wire.ReadChunkSize)
	n, err := t.conn.Read(chunk)
	if n > 0 {
		t.readBuf = append(t.readBuf, chunk[:n]...)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return t.fail(ErrRemoteClosed)
		}
		return t.fail(err)
	}
	if n == 0 {
		return t.fail(ErrRemoteClosed)
	}
	return nil
}

// WriteFrame appends the serialized frame to the write buffer,
// flushing automatically once the buffer reaches WriteFlushThreshold.
func (t *Transport) WriteFrame(f wire.Frame) error {
	if t.err != nil {
		return t.err
	}
	t.writeBuf = wire.AppendFrame(t.writeBuf, f)
	t.metrics.FrameWritten(len(f.Data))
	if len(t.writeBuf) >= wire.WriteFlushThreshold {
		return t.Flush()
	}
	return nil
}

// Flush writes the entire write buffer to conn (and calls conn's own
// Flush, if it has one) and clears the buffer. On I/O error the
// failure is recorded as the sticky error.
func (t *Transport) Flush() error {
	if t.err != nil {
		return t.err
	}
	if len(t.writeBuf) == 0 {
		return nil
	}
	if err := writeFull(t.conn, t.writeBuf); err != nil {
		return t.fail(err)
	}
	if fl, ok := t.conn.(flusher); ok {
		if err := fl.Flush(); err != nil {
			return t.fail(err)
		}
	}
	t.writeBuf = t.writeBuf[:0]
	return nil
}

// writeFull writes all of p to w, looping over short writes per the
// duplex channel's write contract.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Close closes the underlying channel. Best-effort: errors from the
// channel's own Close are returned but do not further poison the
// Transport (the caller is discarding it anyway).
func (t *Transport) Close() error {
	return t.conn.Close()
}

// Err returns the sticky error recorded so far, or nil.
func (t *Transport) Err() error {
	return t.err
}
