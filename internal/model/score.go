package model

import "time"

// APIUser is the local, client-supplied identity attached to a score
// before the database resolves its online identity.
type APIUser struct {
	UserID   int64
	Username string
}

// ScoreInfo is the portion of Score the upload pipeline merges database
// fields into: OnlineID and Passed come from the database, everything
// else (APIUser, mods, checksum, totals) is preserved from the local copy.
type ScoreInfo struct {
	OnlineID        uint64
	Passed          bool
	APIUser         APIUser
	BeatmapChecksum string
	TotalScore      uint64
	Mods            []string
}

// Score is the full score object persisted to blob storage. Replay is
// appended to frame-by-frame by the spectator session tracker.
type Score struct {
	ScoreInfo ScoreInfo
	Replay    []byte
}

// ScoreUploadItem is one item owned by the upload pipeline between
// enqueue and its terminal outcome (write, timeout, or drop).
type ScoreUploadItem struct {
	Token      uint64
	LocalScore Score
	EnqueuedAt time.Time
}

// ResolvedIdentity is what the database resolves a score token to.
type ResolvedIdentity struct {
	OnlineID uint64
	Passed   bool
}
