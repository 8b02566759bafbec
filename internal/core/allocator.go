package core

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/grovelab/grove/internal/domain"
)

// Allocator owns the room set and the available pool. Rooms are created
// at startup and lazily when the pool runs dry; they are never destroyed,
// only membership changes.
type Allocator struct {
	mu       sync.Mutex
	capacity int
	rooms    map[domain.RoomID]*domain.Room
	byConn   map[domain.ConnID]domain.RoomID
	pool     *availablePool
}

func NewAllocator(initialRooms, capacity int) *Allocator {
	a := &Allocator{
		capacity: capacity,
		rooms:    make(map[domain.RoomID]*domain.Room),
		byConn:   make(map[domain.ConnID]domain.RoomID),
		pool:     newAvailablePool(),
	}
	for i := 0; i < initialRooms; i++ {
		a.newRoomLocked()
	}
	return a
}

// Assign places the connection into a random room with spare capacity,
// creating a fresh room when none is available. Calling it again for an
// already placed connection returns the existing room.
func (a *Allocator) Assign(conn domain.ConnID) domain.RoomID {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.byConn[conn]; ok {
		return id
	}

	var room *domain.Room
	if a.pool.len() > 0 {
		room = a.rooms[a.pool.random()]
	} else {
		room = a.newRoomLocked()
	}
	a.joinLocked(conn, room)
	return room.ID
}

// Request is the explicit room-switch path: it validates the target at
// call time and then behaves like Assign against that specific room. A
// connection already placed elsewhere is released from its old room
// first.
func (a *Allocator) Request(conn domain.ConnID, id domain.RoomID) (domain.RoomID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cur, ok := a.byConn[conn]; ok && cur == id {
		return id, nil
	}
	room, ok := a.rooms[id]
	if !ok {
		return "", ErrRoomNotFound
	}
	if room.Size >= room.Capacity {
		return "", ErrRoomFull
	}
	a.releaseLocked(conn)
	a.joinLocked(conn, room)
	return room.ID, nil
}

// Release removes the connection's room mapping and frees one slot.
func (a *Allocator) Release(conn domain.ConnID) (domain.RoomID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.releaseLocked(conn)
}

// RoomOf reports the connection's current room, if any.
func (a *Allocator) RoomOf(conn domain.ConnID) (domain.RoomID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.byConn[conn]
	return id, ok
}

// Exists reports whether a room id is known.
func (a *Allocator) Exists(id domain.RoomID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.rooms[id]
	return ok
}

// Rooms returns a snapshot of every room's occupancy.
func (a *Allocator) Rooms() []domain.Room {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Room, 0, len(a.rooms))
	for _, r := range a.rooms {
		out = append(out, *r)
	}
	return out
}

func (a *Allocator) newRoomLocked() *domain.Room {
	room := &domain.Room{ID: domain.RoomID(uuid.NewString()), Capacity: a.capacity}
	a.rooms[room.ID] = room
	a.pool.add(room.ID)
	log.Info().Str("module", "core.allocator").Str("room", string(room.ID)).Msg("room created")
	return room
}

func (a *Allocator) joinLocked(conn domain.ConnID, room *domain.Room) {
	room.Size++
	if room.Size >= room.Capacity {
		a.pool.remove(room.ID)
	}
	a.byConn[conn] = room.ID
	log.Debug().Str("module", "core.allocator").Str("conn", string(conn)).Str("room", string(room.ID)).Int("size", room.Size).Msg("slot taken")
}

func (a *Allocator) releaseLocked(conn domain.ConnID) (domain.RoomID, bool) {
	id, ok := a.byConn[conn]
	if !ok {
		return "", false
	}
	delete(a.byConn, conn)
	room := a.rooms[id]
	wasFull := room.Size >= room.Capacity
	room.Size--
	if wasFull && room.Size < room.Capacity {
		a.pool.add(room.ID)
	}
	log.Debug().Str("module", "core.allocator").Str("conn", string(conn)).Str("room", string(id)).Int("size", room.Size).Msg("slot freed")
	return id, true
}
