// Package broadcaster implements the Metadata Broadcaster (C11): a
// single-shot timer loop that polls for beatmap metadata changes and
// fans them out to all connected clients.
//
// Grounded on the teacher's RoomManager eviction ticker, but a
// time.Timer reset after each tick completes rather than a time.Ticker —
// the spec requires the poll never run concurrently with itself, which a
// free-running Ticker cannot guarantee once a tick takes longer than the
// interval.
package broadcaster

import (
	"context"
	"log/slog"
	"time"

	"github.com/peppy/osu-server-spectator/internal/database"
)

// Events is the narrow capability the broadcaster uses to announce
// updates, implemented by the hub.
type Events interface {
	BeatmapSetsUpdated(updates database.BeatmapSetUpdates)
}

// Broadcaster polls the database on a fixed interval for beatmap set
// changes and fans out non-empty results.
type Broadcaster struct {
	db       database.Port
	events   Events
	interval time.Duration
	logger   *slog.Logger

	lastQueueID uint32
	stop        chan struct{}
	done        chan struct{}
}

// New constructs a broadcaster. Call Start to begin polling.
func New(db database.Port, events Events, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Broadcaster{
		db:       db,
		events:   events,
		interval: interval,
		logger:   slog.Default().With("component", "MetadataBroadcaster"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the polling loop in its own goroutine.
func (b *Broadcaster) Start() {
	go b.loop()
}

// Stop signals the loop to exit and waits for it to do so. Call it once; a
// second call panics, since it closes an already-closed channel.
func (b *Broadcaster) Stop() {
	close(b.stop)
	<-b.done
}

func (b *Broadcaster) loop() {
	defer close(b.done)

	timer := time.NewTimer(b.interval)
	defer timer.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-timer.C:
			b.tick()
			timer.Reset(b.interval)
		}
	}
}

// tick runs one poll. Panics and errors are caught and logged so the
// timer always restarts — a single bad poll must not end the loop.
func (b *Broadcaster) tick() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while polling beatmap metadata", "panic", r)
		}
	}()

	updates, err := b.db.GetUpdatedBeatmapSets(context.Background(), b.lastQueueID)
	if err != nil {
		b.logger.Error("failed to poll beatmap metadata", "error", err)
		return
	}

	b.lastQueueID = updates.LastProcessedQueueID
	if len(updates.BeatmapSetIDs) > 0 {
		b.events.BeatmapSetsUpdated(updates)
	}
}
