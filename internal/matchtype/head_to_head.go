package matchtype

import "github.com/peppy/osu-server-spectator/internal/model"

// HeadToHeadStrategy is the default: every user competes individually,
// no team data is assigned.
type HeadToHeadStrategy struct{}

func (s *HeadToHeadStrategy) Type() model.MatchType { return model.MatchTypeHeadToHead }

func (s *HeadToHeadStrategy) AssignOnJoin(room *model.Room, user *model.RoomUser) {
	user.MatchRoleData = nil
}

func (s *HeadToHeadStrategy) AggregateResults(room *model.Room) []ResultSummary {
	results := make([]ResultSummary, 0, len(room.Users))
	for _, u := range room.Users {
		results = append(results, ResultSummary{UserID: u.UserID})
	}
	return results
}
