// Package matchtype implements the per-match-type rules (C4): assignment
// on join and result aggregation. Generalizes the teacher's
// GameTypeStrategy interface (single ValidatePlayers method) into the two
// operations §2's component table assigns to C4.
//
// Per DESIGN.md's note on cyclic references, a strategy never holds a
// back-pointer to the room or hub — it receives the room by value/pointer
// at call time and nothing more.
package matchtype

import "github.com/peppy/osu-server-spectator/internal/model"

// TeamColour is the MatchRoleData a TeamVersus strategy stores on each
// RoomUser.
type TeamColour int

const (
	TeamRed TeamColour = iota
	TeamBlue
)

// ResultSummary is one user's contribution to the match-type's result
// aggregation at the end of a play.
type ResultSummary struct {
	UserID int64
	Team   *TeamColour // nil for head-to-head
}

// Strategy is the per-match-type rule set a Room delegates to.
type Strategy interface {
	Type() model.MatchType

	// AssignOnJoin sets up any match-role data a newly joined user needs
	// (e.g. team assignment). Called with the room's Usage already held.
	AssignOnJoin(room *model.Room, user *model.RoomUser)

	// AggregateResults produces the per-user result summary for the
	// users currently in the room, used when building a Results broadcast.
	AggregateResults(room *model.Room) []ResultSummary
}

// For selects the strategy implementation for a match type.
func For(t model.MatchType) Strategy {
	switch t {
	case model.MatchTypeTeamVersus:
		return &TeamVersusStrategy{}
	default:
		return &HeadToHeadStrategy{}
	}
}
