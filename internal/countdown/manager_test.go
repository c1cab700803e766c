package countdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/peppy/osu-server-spectator/internal/model"
	"github.com/peppy/osu-server-spectator/internal/registry"
)

type recordingEvents struct {
	mu               sync.Mutex
	started, stopped int
}

func (e *recordingEvents) CountdownStarted(*model.Room, *model.Countdown) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started++
}

func (e *recordingEvents) CountdownStopped(*model.Room, *model.Countdown) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped++
}

func newTestUsage(t *testing.T, reg *registry.Registry, roomID uint64) *registry.Usage {
	t.Helper()
	usage, err := reg.TryCreate(context.Background(), roomID, func() *model.Room {
		return &model.Room{RoomID: roomID}
	})
	if err != nil {
		t.Fatalf("TryCreate: %v", err)
	}
	return usage
}

func TestStart_FiresOnCompleteAfterDuration(t *testing.T) {
	reg := registry.New()
	usage := newTestUsage(t, reg, 1)
	m := NewManager(reg)
	events := &recordingEvents{}

	done := make(chan struct{})
	m.Start(usage, events, model.CountdownMatchStart, 20*time.Millisecond, func(ctx context.Context, u *registry.Usage) {
		defer u.Release()
		close(done)
	})

	if len(usage.Room().ActiveCountdowns) != 1 {
		t.Fatalf("expected 1 active countdown, got %d", len(usage.Room().ActiveCountdowns))
	}
	usage.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onComplete was never invoked")
	}

	reacquired, err := reg.GetForUse(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetForUse after completion: %v", err)
	}
	defer reacquired.Release()
	if len(reacquired.Room().ActiveCountdowns) != 0 {
		t.Error("expected the countdown to be removed from the room after completion")
	}
}

func TestStopCountdown_PreventsOnComplete(t *testing.T) {
	reg := registry.New()
	usage := newTestUsage(t, reg, 2)
	m := NewManager(reg)
	events := &recordingEvents{}

	fired := false
	c := m.Start(usage, events, model.CountdownMatchStart, 50*time.Millisecond, func(ctx context.Context, u *registry.Usage) {
		defer u.Release()
		fired = true
	})

	m.StopCountdown(usage, events, c.ID)
	if len(usage.Room().ActiveCountdowns) != 0 {
		t.Error("expected countdown removed immediately on stop")
	}
	usage.Release()

	time.Sleep(100 * time.Millisecond)
	if fired {
		t.Error("onComplete must not fire after Stop")
	}
}

func TestStart_ReplacesExistingOfSameType(t *testing.T) {
	reg := registry.New()
	usage := newTestUsage(t, reg, 3)
	m := NewManager(reg)
	events := &recordingEvents{}

	first := m.Start(usage, events, model.CountdownMatchStart, time.Minute, func(context.Context, *registry.Usage) {})
	second := m.Start(usage, events, model.CountdownMatchStart, time.Minute, func(context.Context, *registry.Usage) {})

	if first.ID == second.ID {
		t.Fatal("expected a new countdown id")
	}
	if len(usage.Room().ActiveCountdowns) != 1 {
		t.Fatalf("expected exactly 1 active countdown of this type, got %d", len(usage.Room().ActiveCountdowns))
	}
	if events.stopped != 1 {
		t.Errorf("expected the first countdown to emit a stop event, got %d", events.stopped)
	}
	usage.Release()
}

func TestSkipToEndOfCountdown_RunsContinuationImmediately(t *testing.T) {
	reg := registry.New()
	usage := newTestUsage(t, reg, 4)
	m := NewManager(reg)
	events := &recordingEvents{}

	done := make(chan struct{})
	c := m.Start(usage, events, model.CountdownMatchStart, time.Hour, func(ctx context.Context, u *registry.Usage) {
		defer u.Release()
		close(done)
	})

	usage.Release()
	waiter := m.SkipToEndOfCountdown(c.ID)

	select {
	case <-waiter:
	case <-time.After(time.Second):
		t.Fatal("skip did not resolve")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onComplete was never invoked after skip")
	}
}

func TestSkipToEndOfCountdown_UnknownIDResolvesImmediately(t *testing.T) {
	reg := registry.New()
	m := NewManager(reg)
	waiter := m.SkipToEndOfCountdown(999)
	select {
	case <-waiter:
	case <-time.After(time.Second):
		t.Fatal("expected an immediately-closed channel for an unknown id")
	}
}
