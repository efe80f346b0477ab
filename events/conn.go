package events

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
)

// ErrConnectionClosed is returned by Conn.send on a closed subscriber.
var ErrConnectionClosed = errors.New("events: connection closed")

// ErrNoFlusher is returned by Upgrade when the ResponseWriter cannot
// stream incrementally.
var ErrNoFlusher = errors.New("events: ResponseWriter does not support flushing")

// Conn is one subscriber's long-lived SSE response, adapted from the
// teacher's sse.Conn: same header/flush/context-cancellation
// handling, narrowed to carry only Record events.
type Conn struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	mu      sync.Mutex
}

// Upgrade upgrades an HTTP request to a subscriber connection, using
// the request's context for cancellation.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlusher
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return nil, err
	}
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	c := &Conn{w: w, flusher: flusher, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	go c.watchContext()
	return c, nil
}

func (c *Conn) watchContext() {
	<-c.ctx.Done()
	_ = c.Close()
}

// send writes one Record as an SSE event and flushes it immediately.
func (c *Conn) send(r Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	if _, err := io.WriteString(c.w, r.sseEvent()); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close ends the subscriber connection. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	close(c.done)
	return nil
}

// Done reports when the connection has closed, for callers that want
// to stop work bound to its lifetime.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
