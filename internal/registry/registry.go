// Package registry implements the Room Registry (C3): a process-wide
// keyed map of RoomId -> *model.Room that hands out exclusive Usage leases.
//
// Generalizes the teacher's RoomManager (sync.Map of *Room, each guarded
// by its own sync.RWMutex) into a scoped lease type: each room's mutex is
// represented as a buffered channel of capacity 1, acquired by receive and
// released by send. Go's runtime services blocked channel receivers in
// (approximately) FIFO order, giving waiters the bounded-latency guarantee
// §4.1 asks for without a hand-rolled queue.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/peppy/osu-server-spectator/internal/apperr"
	"github.com/peppy/osu-server-spectator/internal/model"
)

type entry struct {
	mu   chan struct{} // capacity 1: acquired by receive, released by send
	room *model.Room
}

func newEntry(room *model.Room) *entry {
	room.LastActivityAt = time.Now()
	e := &entry{mu: make(chan struct{}, 1), room: room}
	e.mu <- struct{}{}
	return e
}

// Registry is the process-wide room registry. Its own bookkeeping (the
// rooms map) is protected by a short-held internal lock distinct from any
// per-room Usage, per §5 "Shared registries."
type Registry struct {
	mu    sync.Mutex
	rooms map[uint64]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{rooms: make(map[uint64]*entry)}
}

// Usage is a scoped exclusive lease on a room. Release is idempotent and
// must be called on every exit path (success, failure, or cancellation) —
// callers should `defer usage.Release()` immediately after acquisition.
// Re-entrant acquisition (acquiring a second Usage for the same room from
// the same call stack) is forbidden and will deadlock, by design: nothing
// in this package makes it safe.
type Usage struct {
	registry   *Registry
	roomID     uint64
	entry      *entry
	released   bool
	mu         sync.Mutex
}

// Room returns the guarded room. Only valid while the Usage is held.
func (u *Usage) Room() *model.Room { return u.entry.room }

// Release gives up the exclusive lease. Safe to call more than once.
func (u *Usage) Release() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.released {
		return
	}
	u.released = true
	u.entry.room.LastActivityAt = time.Now()
	u.entry.mu <- struct{}{}
}

// acquire blocks until the entry's token is available or ctx is cancelled.
func acquire(ctx context.Context, e *entry) error {
	select {
	case <-e.mu:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetForUse acquires a Usage for an existing room. Fails with a NotFound
// apperr if the room is not present — use TryCreate to create on demand.
func (r *Registry) GetForUse(ctx context.Context, roomID uint64) (*Usage, error) {
	r.mu.Lock()
	e, ok := r.rooms[roomID]
	r.mu.Unlock()

	if !ok {
		return nil, apperr.NotFound("room %d not found", roomID)
	}

	if err := acquire(ctx, e); err != nil {
		return nil, err
	}

	return &Usage{registry: r, roomID: roomID, entry: e}, nil
}

// TryCreate acquires a Usage for roomID, creating the room via factory if
// it does not yet exist. factory is only invoked when the room is new.
func (r *Registry) TryCreate(ctx context.Context, roomID uint64, factory func() *model.Room) (*Usage, error) {
	r.mu.Lock()
	e, ok := r.rooms[roomID]
	if !ok {
		e = newEntry(factory())
		r.rooms[roomID] = e
	}
	r.mu.Unlock()

	if !ok {
		// We just created it and are the only holder of its token so far —
		// acquiring cannot block.
		<-e.mu
		return &Usage{registry: r, roomID: roomID, entry: e}, nil
	}

	if err := acquire(ctx, e); err != nil {
		return nil, err
	}

	return &Usage{registry: r, roomID: roomID, entry: e}, nil
}

// Evict removes roomID from the registry. Must be called while still
// holding that room's Usage (typically right before Release, once the
// caller observes an empty user set) so no other acquirer can race the
// removal. Safe to call even if the room was already evicted.
func (r *Registry) Evict(roomID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
}

// Count returns the number of live rooms. Used by tests; not a substitute
// for per-room Usage when inspecting a room.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// RoomIDs returns a snapshot of currently registered room ids, used by the
// eviction sweep to decide which rooms to inspect without holding the
// registry lock while it acquires each one's Usage.
func (r *Registry) RoomIDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint64, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Exists reports whether roomID is currently registered, without
// acquiring its Usage.
func (r *Registry) Exists(roomID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[roomID]
	return ok
}
