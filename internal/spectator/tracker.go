// Package spectator implements the Spectator Session Tracker (C9):
// per-connection begin/frame/end tracking of an in-progress play, handing
// the finished score off to the upload pipeline.
//
// Grounded on the teacher's per-connection mutex-guarded state in
// internal/game.Game — a small struct of optional fields mutated under a
// lock and read back out on completion — generalized to the score/replay
// shape this system accumulates.
package spectator

import (
	"encoding/json"
	"sync"

	"github.com/peppy/osu-server-spectator/internal/apperr"
	"github.com/peppy/osu-server-spectator/internal/model"
	"github.com/peppy/osu-server-spectator/internal/upload"
	"github.com/peppy/osu-server-spectator/pkg/snowflake"
)

// Events is the narrow capability the tracker uses to announce play
// begin/end, implemented by the hub.
type Events interface {
	UserBeganPlaying(userID int64, token uint64)
	UserFinishedPlaying(userID int64, token uint64)
}

type session struct {
	token uint64
	score model.Score
}

// Tracker holds one session per currently-playing user.
type Tracker struct {
	mu       sync.Mutex
	sessions map[int64]*session
	events   Events
	pipeline *upload.Pipeline
	tokens   *snowflake.Node
}

// NewTracker constructs a tracker that hands completed scores to pipeline.
func NewTracker(events Events, pipeline *upload.Pipeline) *Tracker {
	return &Tracker{
		sessions: make(map[int64]*session),
		events:   events,
		pipeline: pipeline,
		tokens:   snowflake.NewNode(0),
	}
}

// BeginPlaySession starts tracking userID's play, capturing the score
// token that will later be redeemed against the database.
func (t *Tracker) BeginPlaySession(userID int64, token uint64, info model.ScoreInfo) {
	t.mu.Lock()
	t.sessions[userID] = &session{token: token, score: model.Score{ScoreInfo: info}}
	t.mu.Unlock()

	t.events.UserBeganPlaying(userID, token)
}

// SendFrameData appends streamed replay bytes to the in-progress score.
func (t *Tracker) SendFrameData(userID int64, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return apperr.NotFound("no active play session for user %d", userID)
	}
	s.score.Replay = append(s.score.Replay, frame...)
	return nil
}

// EndPlaySession finalizes userID's play, handing the accumulated score
// to the upload pipeline and announcing completion.
func (t *Tracker) EndPlaySession(userID int64) error {
	t.mu.Lock()
	s, ok := t.sessions[userID]
	if ok {
		delete(t.sessions, userID)
	}
	t.mu.Unlock()

	if !ok {
		return apperr.NotFound("no active play session for user %d", userID)
	}

	t.pipeline.Enqueue(s.token, s.score)
	t.events.UserFinishedPlaying(userID, s.token)
	return nil
}

// Disconnect treats a dropped connection as the end of any in-progress
// play session. A user with no active session is not an error here —
// most disconnects happen outside of gameplay.
func (t *Tracker) Disconnect(userID int64) {
	_ = t.EndPlaySession(userID)
}

// Dispatch routes one decoded client RPC belonging to the spectator
// surface. Unrecognized events are left to the caller to try elsewhere
// (the multiplayer RPC surface).
func (t *Tracker) Dispatch(userID int64, event string, payload json.RawMessage) (bool, error) {
	switch event {
	case "begin_play_session":
		var info model.ScoreInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			return true, apperr.InvalidState("malformed begin_play_session payload: %v", err)
		}
		t.BeginPlaySession(userID, t.tokens.Generate(), info)
		return true, nil

	case "send_frame_data":
		var req struct {
			Frame []byte `json:"frame"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return true, apperr.InvalidState("malformed send_frame_data payload: %v", err)
		}
		return true, t.SendFrameData(userID, req.Frame)

	case "end_play_session":
		return true, t.EndPlaySession(userID)

	default:
		return false, nil
	}
}
