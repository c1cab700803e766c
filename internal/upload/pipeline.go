// Package upload implements the Score Upload Pipeline (C10): a
// bounded-concurrency consumer that joins a locally captured score with
// its database-resolved online identity before writing it to blob
// storage, with a per-item timeout and no retry on failure.
//
// Generalizes the teacher's task.WorkerPool (N goroutines draining one
// channel, context-cancellation shutdown, sync.WaitGroup) but swaps its
// bounded channel for an explicit mutex+condvar queue so the pipeline can
// honor an unbounded backlog (see DESIGN.md's resolution of the queue-depth
// open question) while still capping in-flight work at Concurrency.
package upload

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peppy/osu-server-spectator/internal/database"
	"github.com/peppy/osu-server-spectator/internal/model"
	"github.com/peppy/osu-server-spectator/internal/storage"
)

// Config controls the pipeline's behavior. NewPipeline keeps its own copy;
// Enabled can be changed afterwards via Pipeline.SetEnabled, which is
// honored at the next item-pickup boundary, not mid-item. Concurrency is
// fixed at construction.
type Config struct {
	Concurrency     int
	TimeoutInterval time.Duration
	Enabled         bool
}

// nowFunc and sleepFunc are overridable in tests.
var nowFunc = time.Now
var sleepFunc = time.Sleep

var backoffSteps = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	150 * time.Millisecond,
	200 * time.Millisecond,
	250 * time.Millisecond,
}

type queuedItem struct {
	token      uint64
	local      model.Score
	enqueuedAt time.Time
}

// Pipeline is the running upload pipeline. Construct with NewPipeline,
// which starts Concurrency worker goroutines immediately.
type Pipeline struct {
	db      database.Port
	storage storage.Port
	logger  *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*queuedItem
	closed bool

	cfgMu sync.Mutex
	cfg   Config

	remaining atomic.Int64
	wg        sync.WaitGroup
}

// NewPipeline constructs and starts a pipeline with the given configuration.
func NewPipeline(cfg Config, db database.Port, store storage.Port) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	p := &Pipeline{
		db:      db,
		storage: store,
		cfg:     cfg,
		logger:  slog.Default().With("component", "ScoreUploadPipeline"),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// SetEnabled toggles whether resolved scores are actually written.
func (p *Pipeline) SetEnabled(enabled bool) {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()
	p.cfg.Enabled = enabled
}

func (p *Pipeline) currentConfig() Config {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()
	return p.cfg
}

// Enqueue accepts a locally captured score for upload. It never blocks the
// caller beyond buffering into the internal queue.
func (p *Pipeline) Enqueue(token uint64, local model.Score) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, &queuedItem{token: token, local: local, enqueuedAt: nowFunc()})
	p.mu.Unlock()

	p.remaining.Add(1)
	p.cond.Signal()
}

// RemainingUsages returns the count of items still owned by the pipeline
// (queued or in-flight).
func (p *Pipeline) RemainingUsages() uint64 {
	n := p.remaining.Load()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// Dispose stops accepting new items and waits for in-flight work to
// complete before returning.
func (p *Pipeline) Dispose() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// Drain blocks until every accepted item has been written or dropped, or
// ctx is cancelled. It is a test/operational convenience, not part of the
// port contract itself.
func (p *Pipeline) Drain(ctx context.Context) error {
	for p.RemainingUsages() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		item := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.process(item)
		p.remaining.Add(-1)
	}
}

// process polls the database for the item's resolved identity, merges it
// into the local score, then writes to storage if enabled. An empty or
// failed poll is repeated with backoff until the item's timeout, after
// which the item is dropped; a failed storage write drops the item and is
// not retried.
func (p *Pipeline) process(item *queuedItem) {
	cfg := p.currentConfig()
	deadline := item.enqueuedAt.Add(cfg.TimeoutInterval)

	attempt := 0
	var identity *model.ResolvedIdentity
	for {
		resolved, err := p.db.GetScoreFromToken(context.Background(), item.token)
		if err != nil {
			p.logger.Warn("failed to poll score token", "token", item.token, "error", err)
		} else if resolved != nil {
			identity = resolved
			break
		}

		if !nowFunc().Before(deadline) {
			p.logger.Warn("score upload timed out", "token", item.token)
			return
		}

		step := backoffSteps[len(backoffSteps)-1]
		if attempt < len(backoffSteps) {
			step = backoffSteps[attempt]
		}
		sleepFunc(step)
		attempt++
	}

	item.local.ScoreInfo.OnlineID = identity.OnlineID
	item.local.ScoreInfo.Passed = identity.Passed

	if !cfg.Enabled {
		return
	}

	if err := p.storage.Write(context.Background(), item.local); err != nil {
		p.logger.Error("failed to write score to storage", "token", item.token, "error", err)
	}
}
