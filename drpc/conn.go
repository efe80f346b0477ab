package drpc

import (
	"io"

	"github.com/google/uuid"

	"github.com/coregx/drpc/logger"
	"github.com/coregx/drpc/metrics"
	"github.com/coregx/drpc/transport"
	"github.com/coregx/drpc/wire"
)

// Conn is a thin coordinator over one duplex channel: it owns the
// buffered transport and the shared scratch buffer, and allocates new
// stream ids. Per spec §5/§9, at most one Stream obtained from a Conn
// may be in use at a time, because every Stream borrows the same
// scratch buffer. Conn does not check this; callers must keep to it.
type Conn struct {
	id uuid.UUID

	nextSID uint64
	tr      *transport.Transport
	enc     Encoding
	sharedBuf []byte

	log     logger.Logger
	metrics *metrics.Recorder
}

// ConnOption configures a Conn at construction time.
type ConnOption func(*Conn)

// WithEncoding sets the Encoding used to marshal/unmarshal application
// messages. The default is RawEncoding.
func WithEncoding(enc Encoding) ConnOption {
	return func(c *Conn) { c.enc = enc }
}

// WithConnLogger attaches a logger.Logger.
func WithConnLogger(l logger.Logger) ConnOption {
	return func(c *Conn) { c.log = l }
}

// WithConnMetrics attaches a metrics.Recorder.
func WithConnMetrics(m *metrics.Recorder) ConnOption {
	return func(c *Conn) { c.metrics = m }
}

// NewConn wraps rwc — any duplex byte channel — in a Conn ready to
// open client-side streams.
func NewConn(rwc io.ReadWriteCloser, opts ...ConnOption) *Conn {
	c := &Conn{
		id:  uuid.New(),
		enc: RawEncoding{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tr = transport.New(rwc, transport.WithLogger(c.log), transport.WithMetrics(c.metrics))
	c.metrics.ConnOpened()
	c.log.Debugw("drpc connection opened", "conn", c.id)
	return c
}

// ID returns the Conn's identifier. It never appears on the wire; it
// exists purely for logs and metrics.
func (c *Conn) ID() uuid.UUID { return c.id }

// NewStream allocates the next stream id, opens it with an Invoke
// packet carrying rpcName, and returns the Stream. The returned Stream
// borrows the Conn's transport and scratch buffer — callers must not
// start a second stream on the same Conn until this one is closed.
func (c *Conn) NewStream(rpcName []byte) (*Stream, error) {
	c.nextSID++
	id := wire.ID{Stream: c.nextSID, Message: 0}

	sLog := c.log.With("stream", id.Stream)
	s := newStream(id, c.tr, c.enc, &c.sharedBuf, sLog, c.metrics)
	c.metrics.StreamOpened()
	if err := s.Invoke(rpcName); err != nil {
		return nil, err
	}
	return s, nil
}

// InvokeInto is the connection-level convenience wrapper from spec
// §4.6: open a stream, send one message, close the send side, receive
// one reply into out, then close the stream.
func (c *Conn) InvokeInto(rpcName []byte, in, out Message) error {
	s, err := c.NewStream(rpcName)
	if err != nil {
		return err
	}
	if err := s.Send(in); err != nil {
		return err
	}
	if err := s.CloseSend(); err != nil {
		return err
	}
	if err := s.RecvInto(out); err != nil {
		return err
	}
	return s.Close()
}

// Close flushes any buffered writes and closes the underlying
// transport and channel.
func (c *Conn) Close() error {
	err := c.tr.Flush()
	if cerr := c.tr.Close(); err == nil {
		err = cerr
	}
	c.metrics.ConnClosed()
	c.log.Debugw("drpc connection closed", "conn", c.id)
	return err
}
