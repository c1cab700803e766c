package database

import (
	"context"
	"sync"

	"github.com/peppy/osu-server-spectator/internal/model"
)

// Mock is an in-memory Port used by tests across the room engine, upload
// pipeline, and broadcaster packages — the pack never imports a mocking
// library, so test doubles are plain structs implementing the interface.
type Mock struct {
	mu sync.Mutex

	Scores            map[uint64]model.ResolvedIdentity
	BeatmapChecksums  map[uint64]string
	Rooms             map[uint64]*model.RoomRecord
	PlaylistItems     map[uint64][]model.PlaylistItem
	BeatmapSetUpdates []BeatmapSetUpdates
	updateCallCount   int
}

// NewMock returns an empty Mock ready for callers to populate.
func NewMock() *Mock {
	return &Mock{
		Scores:           make(map[uint64]model.ResolvedIdentity),
		BeatmapChecksums: make(map[uint64]string),
		Rooms:            make(map[uint64]*model.RoomRecord),
		PlaylistItems:    make(map[uint64][]model.PlaylistItem),
	}
}

func (m *Mock) GetScoreFromToken(_ context.Context, token uint64) (*model.ResolvedIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity, ok := m.Scores[token]; ok {
		return &identity, nil
	}
	return nil, nil
}

// SetScore makes a subsequently-polled token resolve to the given identity.
func (m *Mock) SetScore(token uint64, identity model.ResolvedIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scores[token] = identity
}

func (m *Mock) GetBeatmapChecksum(_ context.Context, beatmapID uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.BeatmapChecksums[beatmapID], nil
}

func (m *Mock) GetRoom(_ context.Context, roomID uint64) (*model.RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Rooms[roomID], nil
}

func (m *Mock) MarkRoomStarted(_ context.Context, roomID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.Rooms[roomID]; ok {
		_ = r
	}
	return nil
}

func (m *Mock) MarkRoomEnded(_ context.Context, roomID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.Rooms[roomID]; ok {
		now := r.StartedAt
		r.EndedAt = &now
	}
	return nil
}

func (m *Mock) AddPlaylistItem(_ context.Context, roomID uint64, item model.PlaylistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlaylistItems[roomID] = append(m.PlaylistItems[roomID], item)
	return nil
}

func (m *Mock) RemovePlaylistItem(_ context.Context, roomID uint64, itemID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.PlaylistItems[roomID]
	for i, it := range items {
		if it.ItemID == itemID {
			m.PlaylistItems[roomID] = append(items[:i], items[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Mock) UpdatePlaylistItem(_ context.Context, roomID uint64, item model.PlaylistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.PlaylistItems[roomID]
	for i, it := range items {
		if it.ItemID == item.ItemID {
			items[i] = item
			return nil
		}
	}
	return nil
}

func (m *Mock) GetAllPlaylistItems(_ context.Context, roomID uint64) ([]model.PlaylistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PlaylistItem(nil), m.PlaylistItems[roomID]...), nil
}

func (m *Mock) GetUpdatedBeatmapSets(_ context.Context, since uint32) (BeatmapSetUpdates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateCallCount < len(m.BeatmapSetUpdates) {
		updates := m.BeatmapSetUpdates[m.updateCallCount]
		m.updateCallCount++
		return updates, nil
	}
	return BeatmapSetUpdates{LastProcessedQueueID: since}, nil
}

var _ Port = (*Mock)(nil)
