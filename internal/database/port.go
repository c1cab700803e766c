// Package database defines the IDatabaseAccess port (C1) and a
// PostgreSQL-backed implementation, grounded on the teacher's
// repository.GroupRepository query style (pgxpool, $N placeholders).
package database

import (
	"context"

	"github.com/peppy/osu-server-spectator/internal/model"
)

// BeatmapSetUpdates is the result of polling for beatmap metadata changes.
type BeatmapSetUpdates struct {
	LastProcessedQueueID uint32
	BeatmapSetIDs        []uint64
}

// Port is the IDatabaseAccess port consumed by the room engine, the
// upload pipeline, and the metadata broadcaster. Implementations return
// driver errors unwrapped; callers decide whether to wrap them as
// KindDatabaseUnavailable (internal/apperr) and surface them, or log and
// swallow them, per §7.
type Port interface {
	// GetScoreFromToken resolves a score token to its online identity.
	// Returns (nil, nil) if the token has not resolved yet — this is not
	// an error, it is the expected state the upload pipeline polls past.
	GetScoreFromToken(ctx context.Context, token uint64) (*model.ResolvedIdentity, error)

	// GetBeatmapChecksum returns the canonical checksum for a beatmap, or
	// ("", nil) if the beatmap is unknown.
	GetBeatmapChecksum(ctx context.Context, beatmapID uint64) (string, error)

	GetRoom(ctx context.Context, roomID uint64) (*model.RoomRecord, error)
	MarkRoomStarted(ctx context.Context, roomID uint64) error
	MarkRoomEnded(ctx context.Context, roomID uint64) error

	AddPlaylistItem(ctx context.Context, roomID uint64, item model.PlaylistItem) error
	RemovePlaylistItem(ctx context.Context, roomID uint64, itemID uint64) error
	UpdatePlaylistItem(ctx context.Context, roomID uint64, item model.PlaylistItem) error
	GetAllPlaylistItems(ctx context.Context, roomID uint64) ([]model.PlaylistItem, error)

	GetUpdatedBeatmapSets(ctx context.Context, since uint32) (BeatmapSetUpdates, error)
}
