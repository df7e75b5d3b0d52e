// Package chat implements the chat server proper: session lifecycle,
// broadcast fan-out, moderation policy, and admin commands, wired together
// on top of the transport in internal/server.
package chat

import (
	"sync"

	"github.com/infodancer/chatd/internal/server"
)

// Registry tracks which connection speaks for which username. It is the
// authority on who is in the chat: a username is "online" exactly while it
// has an entry here.
type Registry struct {
	mu     sync.Mutex
	names  map[*server.Connection]string
	conns  map[string]*server.Connection
	order  []*server.Connection
	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[*server.Connection]string),
		conns: make(map[string]*server.Connection),
	}
}

// Admit binds username to conn. It fails with ErrDuplicateLogin while the
// username already has a live connection, and with ErrRegistryClosed once
// Shutdown has been called.
func (r *Registry) Admit(conn *server.Connection, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.conns[username]; ok {
		return ErrDuplicateLogin
	}
	r.names[conn] = username
	r.conns[username] = conn
	r.order = append(r.order, conn)
	return nil
}

// Remove drops conn's binding and reports the username it had. Removing a
// connection that is not present is a no-op returning ok=false, so removal
// paths may overlap without harm.
func (r *Registry) Remove(conn *server.Connection) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	username, ok := r.names[conn]
	if !ok {
		return "", false
	}
	delete(r.names, conn)
	delete(r.conns, username)
	for i, c := range r.order {
		if c == conn {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return username, true
}

// Find returns the connection bound to username, or nil.
func (r *Registry) Find(username string) *server.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[username]
}

// Username returns the name bound to conn, or "".
func (r *Registry) Username(conn *server.Connection) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names[conn]
}

// ActiveUsernames returns the online usernames in admission order.
func (r *Registry) ActiveUsernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.order))
	for _, conn := range r.order {
		names = append(names, r.names[conn])
	}
	return names
}

// Snapshot returns the admitted connections in admission order. The slice
// is a copy; senders iterate it without holding the registry lock.
func (r *Registry) Snapshot() []*server.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*server.Connection, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of admitted connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Shutdown marks the registry closed. Admissions racing with shutdown fail
// from this point on; existing entries are removed by their own sessions.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
