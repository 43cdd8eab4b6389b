package runtime

import (
	"sync"
	"time"

	"match-chat/contract"
	"match-chat/domain"
	"match-chat/errors"

	"github.com/google/uuid"
)

// Binding is what a joined connection is attached to.
type Binding struct {
	Identity domain.Identity
	Room     domain.RoomID
}

type session struct {
	sink     contract.EventSink
	binding  *Binding
	lastSeen time.Time
}

// Registry tracks every live connection, the sink its events are pushed to,
// and the identity/room it joined.
type Registry struct {
	mu       sync.RWMutex
	now      func() time.Time
	sessions map[domain.ConnectionID]*session
}

func NewRegistry() *Registry {
	return &Registry{
		now:      time.Now,
		sessions: make(map[domain.ConnectionID]*session),
	}
}

// Attach registers a new unbound connection. It never fails.
func (r *Registry) Attach(sink contract.EventSink) domain.ConnectionID {
	id := domain.ConnectionID(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &session{sink: sink, lastSeen: r.now()}
	return id
}

// Bind associates a connection with an identity and a room.
// A bound connection must be unbound before it can be bound again.
func (r *Registry) Bind(id domain.ConnectionID, identity domain.Identity, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return errors.ErrUnknownConnection
	}
	if s.binding != nil {
		return errors.ErrAlreadyJoined
	}
	s.binding = &Binding{Identity: identity, Room: room}
	return nil
}

// Unbind clears the association and returns what was cleared.
// Calling it on an unbound or unknown connection returns false.
func (r *Registry) Unbind(id domain.ConnectionID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unbindLocked(id)
}

func (r *Registry) unbindLocked(id domain.ConnectionID) (Binding, bool) {
	s, ok := r.sessions[id]
	if !ok || s.binding == nil {
		return Binding{}, false
	}
	b := *s.binding
	s.binding = nil
	return b, true
}

// Detach removes the connection entirely and returns the binding it still held,
// so the caller can reconcile room membership.
func (r *Registry) Detach(id domain.ConnectionID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, bound := r.unbindLocked(id)
	delete(r.sessions, id)
	return b, bound
}

// Binding returns the current binding of a connection.
func (r *Registry) Binding(id domain.ConnectionID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || s.binding == nil {
		return Binding{}, false
	}
	return *s.binding, true
}

func (r *Registry) Contains(id domain.ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Sink returns the sink events for this connection are delivered to.
func (r *Registry) Sink(id domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.sink, true
}

// Touch records that the connection proved to be alive.
func (r *Registry) Touch(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.lastSeen = r.now()
	}
}

// Stale lists the connections last seen before the given instant.
func (r *Registry) Stale(before time.Time) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []domain.ConnectionID
	for id, s := range r.sessions {
		if s.lastSeen.Before(before) {
			res = append(res, id)
		}
	}
	return res
}

// SeenBefore reports whether a known connection was last seen before the given instant.
func (r *Registry) SeenBefore(id domain.ConnectionID, before time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return ok && s.lastSeen.Before(before)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
