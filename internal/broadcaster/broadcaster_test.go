package broadcaster

import (
	"sync"
	"testing"
	"time"

	"github.com/peppy/osu-server-spectator/internal/database"
)

type recordingEvents struct {
	mu      sync.Mutex
	updates []database.BeatmapSetUpdates
}

func (e *recordingEvents) BeatmapSetsUpdated(updates database.BeatmapSetUpdates) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates = append(e.updates, updates)
}

func (e *recordingEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.updates)
}

func TestBroadcaster_FansOutNonEmptyUpdates(t *testing.T) {
	db := database.NewMock()
	db.BeatmapSetUpdates = []database.BeatmapSetUpdates{
		{LastProcessedQueueID: 1, BeatmapSetIDs: nil},
		{LastProcessedQueueID: 2, BeatmapSetIDs: []uint64{10, 11}},
	}
	events := &recordingEvents{}

	b := New(db, events, 10*time.Millisecond)
	b.Start()
	defer b.Stop()

	deadline := time.Now().Add(time.Second)
	for events.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if events.count() != 1 {
		t.Fatalf("expected exactly 1 fan-out (the non-empty update), got %d", events.count())
	}
}

func TestBroadcaster_StopEndsLoop(t *testing.T) {
	db := database.NewMock()
	events := &recordingEvents{}

	b := New(db, events, 5*time.Millisecond)
	b.Start()
	b.Stop()

	countAfterStop := events.count()
	time.Sleep(30 * time.Millisecond)
	if events.count() != countAfterStop {
		t.Error("expected no further polling after Stop")
	}
}
