package spectator

import (
	"sync"
	"testing"
	"time"

	"github.com/peppy/osu-server-spectator/internal/database"
	"github.com/peppy/osu-server-spectator/internal/model"
	"github.com/peppy/osu-server-spectator/internal/storage"
	"github.com/peppy/osu-server-spectator/internal/upload"
)

type recordingEvents struct {
	mu       sync.Mutex
	began    []int64
	finished []int64
}

func (e *recordingEvents) UserBeganPlaying(userID int64, _ uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.began = append(e.began, userID)
}

func (e *recordingEvents) UserFinishedPlaying(userID int64, _ uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = append(e.finished, userID)
}

func newTestTracker() (*Tracker, *recordingEvents, *storage.Mock) {
	db := database.NewMock()
	db.SetScore(7, model.ResolvedIdentity{OnlineID: 99, Passed: true})
	store := storage.NewMock()
	pipeline := upload.NewPipeline(upload.Config{Concurrency: 1, TimeoutInterval: time.Second, Enabled: true}, db, store)
	events := &recordingEvents{}
	return NewTracker(events, pipeline), events, store
}

func TestBeginAndEndPlaySession_EnqueuesScore(t *testing.T) {
	tracker, events, store := newTestTracker()

	tracker.BeginPlaySession(1, 7, model.ScoreInfo{})
	if err := tracker.SendFrameData(1, []byte("frame")); err != nil {
		t.Fatalf("unexpected error sending frame data: %v", err)
	}
	if err := tracker.EndPlaySession(1); err != nil {
		t.Fatalf("unexpected error ending session: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for store.WriteCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if store.WriteCount() != 1 {
		t.Fatalf("expected 1 write, got %d", store.WriteCount())
	}

	if len(events.began) != 1 || events.began[0] != 1 {
		t.Errorf("expected UserBeganPlaying(1), got %v", events.began)
	}
	if len(events.finished) != 1 || events.finished[0] != 1 {
		t.Errorf("expected UserFinishedPlaying(1), got %v", events.finished)
	}
}

func TestSendFrameData_RejectsUnknownUser(t *testing.T) {
	tracker, _, _ := newTestTracker()

	if err := tracker.SendFrameData(42, []byte("frame")); err == nil {
		t.Fatal("expected error for user with no active session")
	}
}

func TestEndPlaySession_RejectsUnknownUser(t *testing.T) {
	tracker, _, _ := newTestTracker()

	if err := tracker.EndPlaySession(42); err == nil {
		t.Fatal("expected error for user with no active session")
	}
}

func TestDisconnect_IgnoresMissingSession(t *testing.T) {
	tracker, _, _ := newTestTracker()
	tracker.Disconnect(42)
}

func TestDisconnect_EndsInProgressSession(t *testing.T) {
	tracker, events, _ := newTestTracker()

	tracker.BeginPlaySession(3, 7, model.ScoreInfo{})
	tracker.Disconnect(3)

	if len(events.finished) != 1 || events.finished[0] != 3 {
		t.Errorf("expected UserFinishedPlaying(3) from disconnect, got %v", events.finished)
	}
}
