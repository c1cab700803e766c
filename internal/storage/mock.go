package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/peppy/osu-server-spectator/internal/model"
)

// Mock is an in-memory Port used by upload pipeline tests. FailNext, when
// set, makes the next Write call fail without retry, then clears itself —
// modeling scenario 4 ("FailedScoreHandledGracefully").
type Mock struct {
	mu       sync.Mutex
	Written  []model.Score
	FailNext bool
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Write(_ context.Context, score model.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext {
		m.FailNext = false
		return errors.New("storage write failed")
	}

	m.Written = append(m.Written, score)
	return nil
}

// WriteCount returns the number of successful writes observed so far.
func (m *Mock) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Written)
}

var _ Port = (*Mock)(nil)
