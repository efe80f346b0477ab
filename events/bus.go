package events

import (
	"errors"
	"sync"
)

// ErrBusClosed is returned by Bus operations after Close.
var ErrBusClosed = errors.New("events: bus closed")

// Bus fans Records out to every subscribed Conn, adapted from the
// teacher's generic sse.Hub[T] narrowed to one concrete payload type
// since drpc only ever publishes Records.
type Bus struct {
	mu      sync.RWMutex
	conns   map[*Conn]bool
	publish chan Record
	sub     chan *Conn
	unsub   chan *Conn
	done    chan struct{}
	closed  bool
}

// NewBus constructs a Bus. Run must be started in a goroutine before
// Publish/Subscribe have any effect.
func NewBus() *Bus {
	return &Bus{
		conns:   make(map[*Conn]bool),
		publish: make(chan Record, 256),
		sub:     make(chan *Conn, 16),
		unsub:   make(chan *Conn, 16),
		done:    make(chan struct{}),
	}
}

// Run processes subscribe/unsubscribe/publish operations until Close.
func (b *Bus) Run() {
	for {
		select {
		case c := <-b.sub:
			b.mu.Lock()
			b.conns[c] = true
			b.mu.Unlock()
		case c := <-b.unsub:
			b.mu.Lock()
			if b.conns[c] {
				delete(b.conns, c)
				_ = c.Close()
			}
			b.mu.Unlock()
		case r := <-b.publish:
			b.fanOut(r)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) fanOut(r Record) {
	b.mu.RLock()
	conns := make([]*Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(r); err != nil {
			b.mu.Lock()
			delete(b.conns, c)
			b.mu.Unlock()
		}
	}
}

// Subscribe registers conn to receive every future Publish.
func (b *Bus) Subscribe(conn *Conn) error {
	if b.isClosed() {
		return ErrBusClosed
	}
	b.sub <- conn
	return nil
}

// Unsubscribe removes and closes conn.
func (b *Bus) Unsubscribe(conn *Conn) error {
	if b.isClosed() {
		return ErrBusClosed
	}
	b.unsub <- conn
	return nil
}

// Publish broadcasts r to every current subscriber.
func (b *Bus) Publish(r Record) error {
	if b.isClosed() {
		return ErrBusClosed
	}
	b.publish <- r
	return nil
}

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Close shuts down the bus and closes every subscriber connection.
// Idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	for c := range b.conns {
		_ = c.Close()
	}
	b.conns = make(map[*Conn]bool)
	return nil
}
