package hub

import (
	"context"
	"time"
)

// EvictionSweeper runs the low-frequency background sweep that
// force-closes rooms left at zero users past a grace period — e.g. a room
// registered by TryCreate whose creator's first JoinRoom then failed.
// Ordinary departures are evicted immediately from LeaveRoom; this is a
// backstop for rooms that never got an immediate eviction.
//
// Grounded on the teacher's RoomManager.evictLoop/evictInactive, generalized
// the same way internal/broadcaster generalizes it: a time.Timer reset
// after each pass completes, rather than a time.Ticker, so a slow sweep
// never overlaps itself.
type EvictionSweeper struct {
	hub      *Hub
	interval time.Duration
	maxAge   time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewEvictionSweeper constructs a sweeper. Call Start to begin polling.
func NewEvictionSweeper(h *Hub, interval, maxAge time.Duration) *EvictionSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &EvictionSweeper{
		hub:      h,
		interval: interval,
		maxAge:   maxAge,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start spawns the sweep loop.
func (s *EvictionSweeper) Start() {
	go s.loop()
}

// Stop ends the sweep loop and waits for the in-flight pass to finish.
func (s *EvictionSweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *EvictionSweeper) loop() {
	defer close(s.done)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-timer.C:
			s.sweep()
			timer.Reset(s.interval)
		}
	}
}

func (s *EvictionSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	evicted := s.hub.evictAbandonedRooms(ctx, s.maxAge)
	if evicted > 0 {
		s.hub.logger.Info("eviction sweep closed abandoned rooms", "count", evicted)
	}
}
