// Package model holds the domain types shared by the room engine, the
// upload pipeline, and the database/storage ports.
package model

import "time"

// RoomState is the aggregate state of a room, fully determined by the
// states of its users (see invariants in Room's doc comment).
type RoomState int

const (
	RoomOpen RoomState = iota
	RoomWaitingForLoad
	RoomPlaying
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomOpen:
		return "open"
	case RoomWaitingForLoad:
		return "waiting_for_load"
	case RoomPlaying:
		return "playing"
	case RoomClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MatchType selects the match-type strategy (C4) a room uses.
type MatchType int

const (
	MatchTypeHeadToHead MatchType = iota
	MatchTypeTeamVersus
)

// QueueMode is the playlist queue policy (C5).
type QueueMode int

const (
	QueueModeHostOnly QueueMode = iota
	QueueModeAllPlayers
	QueueModeAllPlayersRoundRobin
)

// MaxLegacyRulesetID bounds PlaylistItem.RulesetID per the invariant in §3.
const MaxLegacyRulesetID = 3

// RoomSettings is the mutable configuration of a room.
type RoomSettings struct {
	Name           string
	Password       string
	MatchType      MatchType
	QueueMode      QueueMode
	PlaylistItemID uint64
}

// Room is the in-memory aggregate a single Usage (see internal/registry)
// guards exclusively.
//
// Invariants (enforced by internal/room, not by this struct):
//   - at most one PlaylistItem has Expired=false matching Settings.PlaylistItemID
//   - a RoomUser is in Users exactly when it is a member of the room
//   - State == RoomOpen iff no user is in {WaitingForLoad, Loaded, Playing}
//   - State == RoomWaitingForLoad iff >=1 user in WaitingForLoad and none Playing
//   - State == RoomPlaying iff >=1 user in {Loaded, Playing}
//   - HostUserID is a member of Users, or zero if the room is empty
//   - ActiveCountdowns holds at most one instance per CountdownType
type Room struct {
	RoomID           uint64
	State            RoomState
	Settings         RoomSettings
	Users            []RoomUser
	Playlist         []PlaylistItem
	ActiveCountdowns []*Countdown
	HostUserID       int64
	nextItemID       uint64

	// LastActivityAt is set by the registry when the room is registered and
	// refreshed on every Usage release. The eviction sweep uses it to find rooms
	// left at zero users past a grace period (e.g. the creator's first
	// JoinRoom failed after TryCreate registered the room).
	LastActivityAt time.Time
}

// NextItemID returns the next per-room monotonic PlaylistItem id.
func (r *Room) NextItemID() uint64 {
	r.nextItemID++
	return r.nextItemID
}

// FindUser returns the RoomUser with the given id, or nil.
func (r *Room) FindUser(userID int64) *RoomUser {
	for i := range r.Users {
		if r.Users[i].UserID == userID {
			return &r.Users[i]
		}
	}
	return nil
}

// UsersInState returns the ids of users currently in any of the given states.
func (r *Room) UsersInState(states ...UserState) []int64 {
	set := make(map[UserState]struct{}, len(states))
	for _, s := range states {
		set[s] = struct{}{}
	}
	var out []int64
	for _, u := range r.Users {
		if _, ok := set[u.State]; ok {
			out = append(out, u.UserID)
		}
	}
	return out
}

// CurrentItem returns the unexpired PlaylistItem matching
// Settings.PlaylistItemID, or nil if none exists yet.
func (r *Room) CurrentItem() *PlaylistItem {
	for i := range r.Playlist {
		item := &r.Playlist[i]
		if item.ItemID == r.Settings.PlaylistItemID && !item.Expired {
			return item
		}
	}
	return nil
}

// CountdownOfType returns the active countdown of the given type, or nil.
func (r *Room) CountdownOfType(t CountdownType) *Countdown {
	for _, c := range r.ActiveCountdowns {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// RoomRecord mirrors a room's lifecycle markers in the database — the only
// room state persisted outside the process.
type RoomRecord struct {
	RoomID    uint64
	Name      string
	MatchType MatchType
	StartedAt time.Time
	EndedAt   *time.Time
}
