package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peppy/osu-server-spectator/internal/apperr"
	"github.com/peppy/osu-server-spectator/internal/model"
)

func newTestRoom(id uint64) *model.Room {
	return &model.Room{RoomID: id}
}

func TestGetForUse_NotFound(t *testing.T) {
	r := New()
	_, err := r.GetForUse(context.Background(), 1)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestTryCreate_CreatesOnce(t *testing.T) {
	r := New()
	calls := 0

	u, err := r.TryCreate(context.Background(), 1, func() *model.Room {
		calls++
		return newTestRoom(1)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u.Release()

	u2, err := r.TryCreate(context.Background(), 1, func() *model.Room {
		calls++
		return newTestRoom(1)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u2.Release()

	if calls != 1 {
		t.Errorf("expected factory called once, got %d", calls)
	}
}

// TestMutualExclusion is I1: at most one Usage is held at a time; a
// second acquirer blocks until the first holder calls Release.
func TestMutualExclusion(t *testing.T) {
	r := New()
	u, _ := r.TryCreate(context.Background(), 1, func() *model.Room { return newTestRoom(1) })

	var concurrent int32
	var maxConcurrent int32
	done := make(chan struct{})

	go func() {
		u2, err := r.GetForUse(context.Background(), 1)
		if err != nil {
			t.Error(err)
			close(done)
			return
		}
		defer u2.Release()
		n := atomic.AddInt32(&concurrent, 1)
		if n > atomic.LoadInt32(&maxConcurrent) {
			atomic.StoreInt32(&maxConcurrent, n)
		}
		atomic.AddInt32(&concurrent, -1)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond) // give the goroutine a chance to block on acquire
	atomic.AddInt32(&concurrent, 1)
	if atomic.LoadInt32(&maxConcurrent) < atomic.LoadInt32(&concurrent) {
		atomic.StoreInt32(&maxConcurrent, concurrent)
	}
	atomic.AddInt32(&concurrent, -1)
	u.Release()

	<-done
	if maxConcurrent > 1 {
		t.Errorf("expected at most 1 concurrent holder, observed %d", maxConcurrent)
	}
}

func TestGetForUse_ContextCancellation(t *testing.T) {
	r := New()
	u, _ := r.TryCreate(context.Background(), 1, func() *model.Room { return newTestRoom(1) })
	defer u.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.GetForUse(ctx, 1)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestRelease_Idempotent(t *testing.T) {
	r := New()
	u, _ := r.TryCreate(context.Background(), 1, func() *model.Room { return newTestRoom(1) })
	u.Release()
	u.Release() // must not panic or double-unlock

	u2, err := r.GetForUse(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error after idempotent release: %v", err)
	}
	u2.Release()
}

func TestEvict(t *testing.T) {
	r := New()
	u, _ := r.TryCreate(context.Background(), 1, func() *model.Room { return newTestRoom(1) })
	r.Evict(1)
	u.Release()

	if r.Exists(1) {
		t.Fatal("expected room to be evicted")
	}

	_, err := r.GetForUse(context.Background(), 1)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound after eviction, got %v", err)
	}
}

func TestManyRoomsIndependentConcurrency(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := uint64(1); i <= 50; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			u, err := r.TryCreate(context.Background(), id, func() *model.Room { return newTestRoom(id) })
			if err != nil {
				t.Error(err)
				return
			}
			defer u.Release()
			time.Sleep(time.Millisecond)
		}(i)
	}
	wg.Wait()

	if r.Count() != 50 {
		t.Errorf("expected 50 rooms, got %d", r.Count())
	}
}
