package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/grovelab/grove/internal/domain"
)

// Frame is a raw outbound payload.
type Frame []byte

// Sender abstracts the transport endpoint a presence fans out to.
// Owned by the adapter; the adapter must Close() it.
type Sender interface {
	TrySend(Frame) error
	Close()
}

type entry struct {
	presence *domain.Presence
	sender   Sender
	cancel   context.CancelFunc
}

// MemberSnap is a read-only view of one room member plus its transport
// endpoint, for fan-out.
type MemberSnap struct {
	Conn     domain.ConnID
	Presence domain.Presence
	Sender   Sender
}

// Registry owns the presence records of live connections and their
// transport bindings.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*entry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*entry)}
}

// Bind registers a freshly accepted connection. The presence is attached
// later, once the join handshake completes.
func (r *Registry) Bind(conn domain.ConnID, sender Sender, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn] = &entry{sender: sender, cancel: cancel}
	log.Info().Str("module", "core.registry").Str("conn", string(conn)).Msg("bound connection")
}

// SetPresence attaches (or replaces) the presence record for conn.
func (r *Registry) SetPresence(conn domain.ConnID, p domain.Presence) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[conn]
	if !ok {
		return false
	}
	e.presence = &p
	return true
}

// UpdatePosition applies a movement message to the presence record.
func (r *Registry) UpdatePosition(conn domain.ConnID, x, y float64, moving bool, direction string) (domain.Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[conn]
	if !ok || e.presence == nil {
		return domain.Presence{}, false
	}
	e.presence.X = x
	e.presence.Y = y
	e.presence.Moving = moving
	e.presence.Direction = direction
	return *e.presence, true
}

// Get returns a copy of the presence record for conn.
func (r *Registry) Get(conn domain.ConnID) (domain.Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn]
	if !ok || e.presence == nil {
		return domain.Presence{}, false
	}
	return *e.presence, true
}

// Sender returns the transport endpoint bound to conn.
func (r *Registry) Sender(conn domain.ConnID) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn]
	if !ok {
		return nil, false
	}
	return e.sender, true
}

// MembersOfRoom snapshots every joined presence of a room.
func (r *Registry) MembersOfRoom(room domain.RoomID) []MemberSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSnap, 0, len(r.conns))
	for conn, e := range r.conns {
		if e.presence == nil || e.presence.Room != room {
			continue
		}
		out = append(out, MemberSnap{Conn: conn, Presence: *e.presence, Sender: e.sender})
	}
	return out
}

// Unbind drops the connection and its presence record.
func (r *Registry) Unbind(conn domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn)
	log.Info().Str("module", "core.registry").Str("conn", string(conn)).Msg("unbound connection")
}

// Cancel fires the connection's cancel func, stopping its pumps.
func (r *Registry) Cancel(conn domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[conn]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	return true
}
