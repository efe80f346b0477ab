package drpc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Registry tracks the set of live server-side Conns so a Server can
// close them together on Shutdown. It generalizes the teacher's
// websocket.Hub — a broadcast hub over one message type — into a
// plain membership set over *Conn, since drpc has no broadcast
// operation of its own.
type Registry struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*Conn
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uuid.UUID]*Conn)}
}

func (r *Registry) add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

func (r *Registry) remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.ID())
}

// Len reports the number of currently tracked connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes every tracked connection, aggregating whatever
// errors come back from the individual Close calls into one
// *multierror.Error. It returns nil if every Close succeeded.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[uuid.UUID]*Conn)
	r.mu.Unlock()

	var result *multierror.Error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
