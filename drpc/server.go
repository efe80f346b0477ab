package drpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/coregx/drpc/events"
	"github.com/coregx/drpc/logger"
	"github.com/coregx/drpc/metrics"
	"github.com/coregx/drpc/wire"
)

// Handler is the service contract exposed to server users (spec §4.7,
// §6): given the opaque RPC method name and a freshly-opened stream,
// serve the RPC to completion.
type Handler interface {
	Serve(rpcName []byte, stream *Stream) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(rpcName []byte, stream *Stream) error

func (f HandlerFunc) Serve(rpcName []byte, stream *Stream) error { return f(rpcName, stream) }

// Server runs one worker per duplex channel, each dispatching invokes
// to Handler. Per spec §5, a channel and its streams are only ever
// touched by that one worker goroutine. Listener is optional: Serve
// accepts net.Conn channels from it, but a channel obtained any other
// way (e.g. a WebSocket upgrade handled outside Serve) can be handed
// to ServeConn directly, so Server works the same whether the byte
// stream underneath is raw TCP or something else entirely.
type Server struct {
	Listener net.Listener
	Handler  Handler

	// Registry, if set, tracks live connections so Shutdown can close
	// them together. Optional: a nil Registry means Server only stops
	// accepting new channels on Shutdown and lets in-flight workers run
	// to completion on their own.
	Registry *Registry

	// Events, if set, receives a Record for every connection and
	// stream open/close so a dashboard subscribed via events.Handler
	// can watch the server live.
	Events *events.Bus

	EncodingOpt Encoding
	Logger      logger.Logger
	Metrics     *metrics.Recorder

	wg       sync.WaitGroup
	closeMu  sync.Mutex
	closed   bool
	closeErr error
}

// Serve runs the accept loop until the Listener is closed or Shutdown
// is called. It always returns a non-nil error (net.Listener's own
// convention); a clean Shutdown yields net.ErrClosed wrapped from
// Accept.
func (s *Server) Serve() error {
	for {
		nc, err := s.Listener.Accept()
		if err != nil {
			s.wg.Wait()
			return err
		}
		go s.ServeConn(nc)
	}
}

// ServeConn runs one worker over an already-established duplex
// channel, dispatching invokes to Handler exactly as a channel
// accepted by Serve would. Use it for channels that did not come from
// Server's own Listener — a WebSocket connection handed off by an
// http.Handler after wsduplex.Upgrade, for example — so that anything
// satisfying io.ReadWriteCloser can carry the protocol, per the duplex
// channel contract (spec §2). ServeConn blocks until the channel
// closes or the handler errors, and counts toward Shutdown's wait.
func (s *Server) ServeConn(rwc io.ReadWriteCloser) {
	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConn(rwc)
}

func (s *Server) handleConn(nc io.ReadWriteCloser) {
	enc := s.EncodingOpt
	if enc == nil {
		enc = RawEncoding{}
	}
	conn := NewConn(nc,
		WithEncoding(enc),
		WithConnLogger(s.Logger),
		WithConnMetrics(s.Metrics),
	)
	defer conn.Close()

	if s.Registry != nil {
		s.Registry.add(conn)
		defer s.Registry.remove(conn)
	}

	s.publish(events.Record{Kind: events.ConnOpened, ConnID: conn.ID().String(), Timestamp: time.Now()})
	defer s.publish(events.Record{Kind: events.ConnClosed, ConnID: conn.ID().String(), Timestamp: time.Now()})

	for {
		var rpcName []byte
		stream, err := s.acceptStream(conn, &rpcName)
		if err != nil {
			if errors.Is(err, ErrRemoteClosed) {
				return
			}
			s.Logger.Warnw("drpc accept loop: transport error", "conn", conn.ID(), "error", err)
			return
		}

		if err := s.Handler.Serve(rpcName, stream); err != nil {
			if errors.Is(err, ErrEOF) {
				s.publish(events.Record{Kind: events.StreamClosed, ConnID: conn.ID().String(), StreamID: stream.ID().Stream, Reason: "eof", Timestamp: time.Now()})
				continue
			}
			_ = stream.Error(err.Error(), autoErrorCode)
			s.publish(events.Record{Kind: events.StreamClosed, ConnID: conn.ID().String(), StreamID: stream.ID().Stream, Reason: "handler_error", Timestamp: time.Now()})
			s.Logger.Warnw("drpc handler returned error, closing connection", "conn", conn.ID(), "error", err)
			return
		}
		s.publish(events.Record{Kind: events.StreamClosed, ConnID: conn.ID().String(), StreamID: stream.ID().Stream, Reason: "handler_done", Timestamp: time.Now()})
	}
}

// publish forwards r to s.Events if one is attached. Safe to call
// with a nil Events.
func (s *Server) publish(r events.Record) {
	if s.Events != nil {
		_ = s.Events.Publish(r)
	}
}

// acceptStream reads the next packet on conn's shared transport and,
// if it is an Invoke, constructs the Stream for it. Any other kind is
// ignored per spec §4.7 step 2.
func (s *Server) acceptStream(conn *Conn, rpcName *[]byte) (*Stream, error) {
	for {
		id, kind, err := conn.tr.ReadPacketInto(&conn.sharedBuf)
		if err != nil {
			return nil, err
		}
		if kind == wire.KindInvoke {
			*rpcName = append((*rpcName)[:0], conn.sharedBuf...)
			sLog := conn.log.With("stream", id.Stream)
			stream := newStream(id, conn.tr, conn.enc, &conn.sharedBuf, sLog, conn.metrics)
			conn.metrics.StreamOpened()
			s.publish(events.Record{Kind: events.StreamOpened, ConnID: conn.ID().String(), StreamID: id.Stream, Timestamp: time.Now()})
			return stream, nil
		}
		// Not an Invoke: ignore and keep reading.
	}
}

// Shutdown stops accepting new channels and, if a Registry is
// attached, closes every tracked connection, aggregating any close
// errors; closing a connection makes its worker's blocked read fail,
// which ends that worker. Workers receive no other signal: without a
// Registry they run until their channel closes. ctx only bounds how
// long Shutdown waits for the workers to return. A Server driven only
// through ServeConn (no Listener set, e.g. a WebSocket-only server
// whose accept loop lives in an http.Server instead) simply skips the
// listener close and waits on in-flight ServeConn workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return s.closeErr
	}
	s.closed = true
	s.closeMu.Unlock()

	var err error
	if s.Listener != nil {
		err = s.Listener.Close()
	}

	if s.Registry != nil {
		if rerr := s.Registry.CloseAll(); rerr != nil {
			if err == nil {
				err = rerr
			}
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	s.closeErr = err
	return err
}
