package realtime

import "sync"

// Rooms tracks which channels this client wants events for, independent of
// whether the transport is currently up. Add/Remove are idempotent.
type Rooms struct {
	mu  sync.Mutex
	set map[string]Room
}

func NewRooms() *Rooms {
	return &Rooms{set: map[string]Room{}}
}

// Add returns true if the room was not already tracked.
func (r *Rooms) Add(room Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[room.Key()]; ok {
		return false
	}
	r.set[room.Key()] = room
	return true
}

// Remove returns true if the room was tracked.
func (r *Rooms) Remove(room Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[room.Key()]; !ok {
		return false
	}
	delete(r.set, room.Key())
	return true
}

func (r *Rooms) Contains(room Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[room.Key()]
	return ok
}

func (r *Rooms) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.set)
}

// Snapshot copies the current membership, for replay on reconnect.
func (r *Rooms) Snapshot() []Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Room, 0, len(r.set))
	for _, room := range r.set {
		out = append(out, room)
	}
	return out
}
