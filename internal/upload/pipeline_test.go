package upload

import (
	"context"
	"testing"
	"time"

	"github.com/peppy/osu-server-spectator/internal/database"
	"github.com/peppy/osu-server-spectator/internal/model"
	"github.com/peppy/osu-server-spectator/internal/storage"
)

func init() {
	// Tests don't want to actually wait out the 50-250ms backoff ladder.
	sleepFunc = func(time.Duration) {}
}

func drainOrFail(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("pipeline did not drain: %v", err)
	}
}

// TestScoreDataMergedCorrectly is scenario 1.
func TestScoreDataMergedCorrectly(t *testing.T) {
	db := database.NewMock()
	db.SetScore(1, model.ResolvedIdentity{OnlineID: 2, Passed: true})
	store := storage.NewMock()

	p := NewPipeline(Config{Concurrency: 1, TimeoutInterval: time.Second, Enabled: true}, db, store)
	p.Enqueue(1, model.Score{ScoreInfo: model.ScoreInfo{APIUser: model.APIUser{UserID: 1234, Username: "some user"}}})
	drainOrFail(t, p)
	p.Dispose()

	if store.WriteCount() != 1 {
		t.Fatalf("expected exactly 1 write, got %d", store.WriteCount())
	}
	written := store.Written[0]
	if written.ScoreInfo.OnlineID != 2 || !written.ScoreInfo.Passed {
		t.Errorf("expected merged OnlineID=2 Passed=true, got %+v", written.ScoreInfo)
	}
	if written.ScoreInfo.APIUser.Username != "some user" {
		t.Errorf("expected local APIUser preserved, got %+v", written.ScoreInfo.APIUser)
	}
}

// TestScoreDoesNotUploadIfDisabled is scenario 2.
func TestScoreDoesNotUploadIfDisabled(t *testing.T) {
	db := database.NewMock()
	db.SetScore(1, model.ResolvedIdentity{OnlineID: 2, Passed: true})
	store := storage.NewMock()

	p := NewPipeline(Config{Concurrency: 1, TimeoutInterval: time.Second, Enabled: false}, db, store)
	p.Enqueue(1, model.Score{})
	drainOrFail(t, p)
	p.Dispose()

	if store.WriteCount() != 0 {
		t.Fatalf("expected zero writes when disabled, got %d", store.WriteCount())
	}
}

// TestTimedOutScoreDoesNotUpload is scenario 3.
func TestTimedOutScoreDoesNotUpload(t *testing.T) {
	db := database.NewMock()
	store := storage.NewMock()

	p := NewPipeline(Config{Concurrency: 1, TimeoutInterval: 0, Enabled: true}, db, store)
	p.Enqueue(2, model.Score{})
	drainOrFail(t, p)

	db.SetScore(2, model.ResolvedIdentity{OnlineID: 3, Passed: true})
	time.Sleep(20 * time.Millisecond)
	if store.WriteCount() != 0 {
		t.Fatalf("expected zero writes for a timed-out token, got %d", store.WriteCount())
	}

	// The pipeline must not be stuck: a later, resolvable item still uploads.
	db.SetScore(3, model.ResolvedIdentity{OnlineID: 4, Passed: true})
	p.Enqueue(3, model.Score{})
	drainOrFail(t, p)
	p.Dispose()

	if store.WriteCount() != 1 {
		t.Fatalf("expected 1 write for the later resolvable token, got %d", store.WriteCount())
	}
}

// TestFailedScoreHandledGracefully is scenario 4.
func TestFailedScoreHandledGracefully(t *testing.T) {
	db := database.NewMock()
	db.SetScore(1, model.ResolvedIdentity{OnlineID: 2, Passed: true})
	store := storage.NewMock()
	store.FailNext = true

	p := NewPipeline(Config{Concurrency: 1, TimeoutInterval: time.Second, Enabled: true}, db, store)
	p.Enqueue(1, model.Score{})
	drainOrFail(t, p)

	if store.WriteCount() != 0 {
		t.Fatalf("expected zero successful writes after a storage failure, got %d", store.WriteCount())
	}

	p.Enqueue(1, model.Score{})
	drainOrFail(t, p)
	p.Dispose()

	if store.WriteCount() != 1 {
		t.Fatalf("expected exactly 1 successful write after storage recovers, got %d", store.WriteCount())
	}
}

// TestMassUploads is scenario 5.
func TestMassUploads(t *testing.T) {
	db := database.NewMock()
	store := storage.NewMock()
	for token := uint64(1); token <= 1000; token++ {
		db.SetScore(token, model.ResolvedIdentity{OnlineID: token, Passed: true})
	}

	p := NewPipeline(Config{Concurrency: 4, TimeoutInterval: time.Second, Enabled: true}, db, store)
	for token := uint64(1); token <= 1000; token++ {
		p.Enqueue(token, model.Score{})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("pipeline did not drain 1000 items in time: %v", err)
	}
	p.Dispose()

	if store.WriteCount() != 1000 {
		t.Fatalf("expected exactly 1000 writes, got %d", store.WriteCount())
	}
}
