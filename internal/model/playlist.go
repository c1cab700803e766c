package model

import "time"

// PlaylistItem is one entry in a room's playlist queue (C5).
type PlaylistItem struct {
	ItemID          uint64
	OwnerUserID     int64
	BeatmapID       uint64
	BeatmapChecksum string
	RulesetID       int
	Expired         bool
	PlayedAt        *time.Time
}
