package matchtype

import "github.com/peppy/osu-server-spectator/internal/model"

// TeamVersusStrategy assigns each joining user to whichever of the two
// teams has fewer members, balancing as players come and go.
type TeamVersusStrategy struct{}

func (s *TeamVersusStrategy) Type() model.MatchType { return model.MatchTypeTeamVersus }

func (s *TeamVersusStrategy) AssignOnJoin(room *model.Room, user *model.RoomUser) {
	var red, blue int
	for _, u := range room.Users {
		if colour, ok := u.MatchRoleData.(TeamColour); ok {
			if colour == TeamRed {
				red++
			} else {
				blue++
			}
		}
	}

	if red <= blue {
		user.MatchRoleData = TeamRed
	} else {
		user.MatchRoleData = TeamBlue
	}
}

func (s *TeamVersusStrategy) AggregateResults(room *model.Room) []ResultSummary {
	results := make([]ResultSummary, 0, len(room.Users))
	for _, u := range room.Users {
		colour, _ := u.MatchRoleData.(TeamColour)
		c := colour
		results = append(results, ResultSummary{UserID: u.UserID, Team: &c})
	}
	return results
}
