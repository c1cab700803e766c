// Package countdown implements the Countdown Manager (C6): a per-room set
// of typed, cancellable countdowns with start/stop/skip and a completion
// callback that runs under a freshly re-acquired room Usage.
//
// Generalizes the teacher's single-shot ticker idiom
// (room.RoomManager.evictLoop, task.Scheduler.tickLoop) into a per-countdown
// time.Timer governed by two independent cancellation sources, per §4.4 and
// §9's note on "countdowns with linked cancellation": Stop cancels and
// drops the continuation, Skip cancels and runs it immediately. Either way
// the continuation re-acquires the room via the registry — it never closes
// over the caller's lock.
package countdown

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/peppy/osu-server-spectator/internal/model"
	"github.com/peppy/osu-server-spectator/internal/registry"
)

// Events is the narrow capability the manager uses to announce start/stop,
// kept separate from the hub per DESIGN.md's note on cyclic references.
type Events interface {
	CountdownStarted(room *model.Room, c *model.Countdown)
	CountdownStopped(room *model.Room, c *model.Countdown)
}

// OnComplete runs under a freshly re-acquired Usage once a countdown
// resolves naturally or via Skip. It never runs for a Stop.
type OnComplete func(ctx context.Context, usage *registry.Usage)

type handle struct {
	countdown *model.Countdown
	stopCh    chan struct{}
	skipCh    chan struct{}
	done      chan struct{} // closed once the goroutine fully exits
	stopOnce  sync.Once
	skipOnce  sync.Once
}

// Manager owns the in-flight countdown goroutines across all rooms. Its
// own bookkeeping is guarded by a lock distinct from any room's Usage, per
// §5 "Shared registries."
type Manager struct {
	reg     *registry.Registry
	mu      sync.Mutex
	handles map[uint64]*handle // countdown id -> handle
	nextID  uint64
	logger  *slog.Logger
}

// NewManager creates a countdown manager bound to a room registry, used to
// re-acquire rooms for completion callbacks.
func NewManager(reg *registry.Registry) *Manager {
	return &Manager{
		reg:     reg,
		handles: make(map[uint64]*handle),
		logger:  slog.Default().With("component", "CountdownManager"),
	}
}

// Start begins a countdown of the given type/duration on a room whose
// Usage the caller already holds. Any existing countdown of the same type
// is stopped first. The caller must not await anything from this method —
// it returns immediately once bookkeeping is updated; the timer runs in
// its own goroutine.
func (m *Manager) Start(usage *registry.Usage, events Events, countdownType model.CountdownType, duration time.Duration, onComplete OnComplete) *model.Countdown {
	room := usage.Room()

	m.stopType(room, events, countdownType)

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	c := &model.Countdown{
		ID:        id,
		Type:      countdownType,
		StartTime: time.Now(),
		Duration:  duration,
	}
	room.ActiveCountdowns = append(room.ActiveCountdowns, c)

	h := &handle{
		countdown: c,
		stopCh:    make(chan struct{}),
		skipCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.handles[id] = h
	m.mu.Unlock()

	events.CountdownStarted(room, c)

	roomID := room.RoomID
	go m.run(roomID, h, events, onComplete)

	return c
}

// run waits for the timer to elapse or a cancellation signal, then — for
// natural completion and Skip only — re-acquires the room and invokes the
// continuation under the fresh Usage.
func (m *Manager) run(roomID uint64, h *handle, events Events, onComplete OnComplete) {
	defer close(h.done)

	timer := time.NewTimer(h.countdown.Duration)
	defer timer.Stop()

	var skipped bool
	select {
	case <-timer.C:
	case <-h.skipCh:
		skipped = true
	case <-h.stopCh:
		m.forget(h.countdown.ID)
		return
	}
	_ = skipped

	ctx := context.Background()
	usage, err := m.reg.GetForUse(ctx, roomID)
	if err != nil {
		// Room is gone — nothing left to notify.
		m.forget(h.countdown.ID)
		return
	}
	defer usage.Release()

	// A Stop may have raced us between the timer firing and re-acquiring
	// the usage; check once more before running the continuation.
	select {
	case <-h.stopCh:
		m.forget(h.countdown.ID)
		return
	default:
	}

	room := usage.Room()
	m.removeFromRoom(room, h.countdown.ID)
	events.CountdownStopped(room, h.countdown)
	m.forget(h.countdown.ID)

	if onComplete != nil {
		onComplete(ctx, usage)
	}
}

func (m *Manager) removeFromRoom(room *model.Room, id uint64) {
	for i, c := range room.ActiveCountdowns {
		if c.ID == id {
			room.ActiveCountdowns = append(room.ActiveCountdowns[:i], room.ActiveCountdowns[i+1:]...)
			return
		}
	}
}

func (m *Manager) forget(id uint64) {
	m.mu.Lock()
	delete(m.handles, id)
	m.mu.Unlock()
}

// StopAnyCountdown stops the active countdown of the given type, if any,
// on a room whose Usage the caller already holds.
func (m *Manager) StopAnyCountdown(usage *registry.Usage, events Events, countdownType model.CountdownType) {
	m.stopType(usage.Room(), events, countdownType)
}

// StopCountdown stops a specific countdown by id, on a room whose Usage
// the caller already holds.
func (m *Manager) StopCountdown(usage *registry.Usage, events Events, id uint64) {
	m.stopByID(usage.Room(), events, id)
}

func (m *Manager) stopType(room *model.Room, events Events, countdownType model.CountdownType) {
	existing := room.CountdownOfType(countdownType)
	if existing == nil {
		return
	}
	m.stopByID(room, events, existing.ID)
}

func (m *Manager) stopByID(room *model.Room, events Events, id uint64) {
	m.mu.Lock()
	h, ok := m.handles[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	h.stopOnce.Do(func() { close(h.stopCh) })
	m.removeFromRoom(room, id)
	events.CountdownStopped(room, h.countdown)
	m.forget(id)
}

// SkipToEndOfCountdown signals the countdown to run its continuation
// immediately and returns a channel the caller can await — strictly
// *after* releasing its own Usage, per the deadlock rule in §5: the
// continuation needs to re-acquire that same Usage.
func (m *Manager) SkipToEndOfCountdown(id uint64) <-chan struct{} {
	m.mu.Lock()
	h, ok := m.handles[id]
	m.mu.Unlock()
	if !ok {
		done := make(chan struct{})
		close(done)
		return done
	}
	h.skipOnce.Do(func() { close(h.skipCh) })
	return h.done
}
