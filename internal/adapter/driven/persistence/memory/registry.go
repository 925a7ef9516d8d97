package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/Wyydra/devmeet/internal/core/domain"
)

// Registry keeps connections and rooms in process memory. A single RWMutex
// guards both maps so joins and leaves on the same room never interleave.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*domain.Connection
	rooms map[domain.RoomID]map[domain.ConnectionID]struct{}

	newID func() domain.ConnectionID
	now   func() time.Time
}

type Option func(*Registry)

// WithIDGenerator overrides connection id allocation. Used by tests that need
// predictable ids.
func WithIDGenerator(f func() domain.ConnectionID) Option {
	return func(r *Registry) { r.newID = f }
}

func WithClock(f func() time.Time) Option {
	return func(r *Registry) { r.now = f }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		conns: make(map[domain.ConnectionID]*domain.Connection),
		rooms: make(map[domain.RoomID]map[domain.ConnectionID]struct{}),
		newID: domain.NewConnectionID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register() domain.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.conns[id]; taken; _, taken = r.conns[id] {
		id = r.newID()
	}

	c := &domain.Connection{
		ID:          id,
		State:       domain.StateRegistered,
		ConnectedAt: r.now(),
	}
	r.conns[id] = c
	return *c
}

func (r *Registry) Join(id domain.ConnectionID, room domain.RoomID) ([]domain.ConnectionID, error) {
	if room == "" {
		return nil, domain.ErrEmptyRoomID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, domain.ErrNotConnected
	}

	// A connection is in at most one room. Callers that need to notify the old
	// room call Leave first; this only keeps the maps consistent.
	if c.InRoom() && c.RoomID != room {
		r.leaveLocked(c)
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[domain.ConnectionID]struct{})
		r.rooms[room] = members
	}

	existing := make([]domain.ConnectionID, 0, len(members))
	for m := range members {
		if m != id {
			existing = append(existing, m)
		}
	}
	domain.SortIDs(existing)

	members[id] = struct{}{}
	c.RoomID = room
	c.State = domain.StateInRoom
	return existing, nil
}

func (r *Registry) Leave(id domain.ConnectionID) (domain.Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return domain.Departure{}, false
	}
	return r.leaveLocked(c)
}

func (r *Registry) Unregister(id domain.ConnectionID) (domain.Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return domain.Departure{}, false
	}
	dep, _ := r.leaveLocked(c)
	c.State = domain.StateClosed
	delete(r.conns, id)
	return dep, true
}

func (r *Registry) leaveLocked(c *domain.Connection) (domain.Departure, bool) {
	if !c.InRoom() {
		return domain.Departure{}, false
	}

	room := c.RoomID
	c.RoomID = ""
	c.State = domain.StateRegistered

	members, ok := r.rooms[room]
	if !ok {
		return domain.Departure{}, false
	}
	delete(members, c.ID)

	remaining := make([]domain.ConnectionID, 0, len(members))
	for m := range members {
		remaining = append(remaining, m)
	}
	domain.SortIDs(remaining)

	if len(members) == 0 {
		delete(r.rooms, room)
	}

	return domain.Departure{
		ConnectionID: c.ID,
		RoomID:       room,
		Remaining:    remaining,
	}, true
}

func (r *Registry) Lookup(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, false
	}
	return *c, true
}

func (r *Registry) RoomOf(id domain.ConnectionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok || !c.InRoom() {
		return "", false
	}
	return c.RoomID, true
}

func (r *Registry) Members(room domain.RoomID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]domain.ConnectionID, 0, len(members))
	for m := range members {
		out = append(out, m)
	}
	domain.SortIDs(out)
	return out
}

func (r *Registry) Rooms() []domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Room, 0, len(r.rooms))
	for id, members := range r.rooms {
		room := domain.Room{ID: id, Members: make([]domain.ConnectionID, 0, len(members))}
		for m := range members {
			room.Members = append(room.Members, m)
		}
		domain.SortIDs(room.Members)
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Stats() domain.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return domain.RegistryStats{
		Connections: len(r.conns),
		Rooms:       len(r.rooms),
	}
}
