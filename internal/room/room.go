// Package room implements the Room State Machine (C7): the user set,
// per-user state, host authority, and the transitions between them that
// drive the aggregate Room.State invariants from the model package's doc
// comment.
//
// Operations here are free functions over a *model.Room the caller already
// holds a registry.Usage for — mirroring the teacher's room.operations.go
// shape (mutate in place, persist/emit after validation passes) rather
// than wrapping the room in a stateful service object, so the match-type
// strategy and playlist queue can be consulted without a cyclic
// back-reference (see DESIGN.md).
package room

import (
	"context"
	"log/slog"

	"github.com/peppy/osu-server-spectator/internal/apperr"
	"github.com/peppy/osu-server-spectator/internal/database"
	"github.com/peppy/osu-server-spectator/internal/matchtype"
	"github.com/peppy/osu-server-spectator/internal/model"
	"github.com/peppy/osu-server-spectator/internal/playlist"
)

// Events is the narrow capability this package uses to announce room and
// user changes. The hub implements it and owns the actual fan-out.
type Events interface {
	UserJoined(room *model.Room, user model.RoomUser)
	UserLeft(room *model.Room, userID int64)
	UserStateChanged(room *model.Room, userID int64, state model.UserState)
	HostChanged(room *model.Room, newHostID int64)
	SettingsChanged(room *model.Room, settings model.RoomSettings)
	MatchStarted(room *model.Room)
	LoadRequested(room *model.Room, userIDs []int64)
	MatchFinished(room *model.Room)
}

// JoinRoom adds userID to the room, assigning host if it is empty and
// delegating match-role assignment to the room's strategy.
func JoinRoom(room *model.Room, events Events, userID int64) (*model.RoomUser, error) {
	if room.FindUser(userID) != nil {
		return nil, apperr.InvalidState("user %d is already in room %d", userID, room.RoomID)
	}

	user := model.RoomUser{UserID: userID, State: model.UserIdle}
	matchtype.For(room.Settings.MatchType).AssignOnJoin(room, &user)

	room.Users = append(room.Users, user)
	if room.HostUserID == 0 {
		room.HostUserID = userID
		events.HostChanged(room, userID)
	}

	recomputeState(room)
	events.UserJoined(room, user)
	return &room.Users[len(room.Users)-1], nil
}

// LeaveRoom removes userID, treating it as an implicit Idle transition
// first so the aggregate state invariant is restored consistently with
// any other path out of the gameplay subgroup. Reassigns host to the next
// user in insertion order if the departing user was host.
func LeaveRoom(room *model.Room, events Events, userID int64) error {
	idx := -1
	for i := range room.Users {
		if room.Users[i].UserID == userID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return apperr.NotFound("user %d is not in room %d", userID, room.RoomID)
	}

	if room.Users[idx].State != model.UserIdle {
		room.Users[idx].State = model.UserIdle
		events.UserStateChanged(room, userID, model.UserIdle)
	}

	room.Users = append(room.Users[:idx], room.Users[idx+1:]...)
	events.UserLeft(room, userID)

	if room.HostUserID == userID {
		if len(room.Users) > 0 {
			room.HostUserID = room.Users[0].UserID
			events.HostChanged(room, room.HostUserID)
		} else {
			room.HostUserID = 0
		}
	}

	recomputeState(room)
	return nil
}

// ChangeSettings applies new room settings. Host-only.
func ChangeSettings(room *model.Room, events Events, callerUserID int64, settings model.RoomSettings) error {
	if callerUserID != room.HostUserID {
		return apperr.NotAuthorized("user %d is not the host of room %d", callerUserID, room.RoomID)
	}
	if room.State != model.RoomOpen {
		return apperr.InvalidState("settings may only change while the room is open")
	}
	room.Settings = settings
	events.SettingsChanged(room, settings)
	return nil
}

// StartMatch transitions Ready users into WaitingForLoad. Non-ready users
// remain Idle and are excluded from the LoadRequested fan-out, per §4.3.
func StartMatch(room *model.Room, events Events, callerUserID int64) error {
	if callerUserID != room.HostUserID {
		return apperr.NotAuthorized("user %d is not the host of room %d", callerUserID, room.RoomID)
	}
	if room.State != model.RoomOpen {
		return apperr.InvalidState("match already in progress")
	}

	host := room.FindUser(room.HostUserID)
	if host == nil || host.State != model.UserReady {
		return apperr.InvalidState("host must be ready to start the match")
	}

	var starting []int64
	for i := range room.Users {
		if room.Users[i].State == model.UserReady {
			starting = append(starting, room.Users[i].UserID)
		}
	}
	if len(starting) == 0 {
		return apperr.InvalidState("no ready users to start a match with")
	}

	for i := range room.Users {
		for _, id := range starting {
			if room.Users[i].UserID == id {
				room.Users[i].State = model.UserWaitingForLoad
				events.UserStateChanged(room, id, model.UserWaitingForLoad)
			}
		}
	}

	recomputeState(room)
	events.MatchStarted(room)
	events.LoadRequested(room, starting)
	return nil
}

// effectivelyLoaded reports whether a user in the gameplay subgroup has
// finished loading and is waiting to be moved into Playing.
func effectivelyLoaded(s model.UserState) bool {
	return s == model.UserLoaded || s == model.UserReadyForGameplay
}

// ChangeState applies a client-requested user-state transition. Requests
// for server-driven states fail with InvalidStateChange. Repeating the
// current state is a no-op (I6) and emits nothing. Reaching FinishedPlay
// may complete the match for the room, which advances the playlist queue
// via db/playlistEvents. logger may be nil.
func ChangeState(ctx context.Context, db database.Port, room *model.Room, events Events, playlistEvents playlist.Events, userID int64, requested model.UserState, logger *slog.Logger) error {
	user := room.FindUser(userID)
	if user == nil {
		return apperr.NotFound("user %d is not in room %d", userID, room.RoomID)
	}

	if !model.ClientRequestableStates[requested] {
		return apperr.InvalidStateChange("state %s cannot be requested directly", requested)
	}

	if user.State == requested {
		return nil
	}

	if err := validateTransition(user.State, requested); err != nil {
		return err
	}

	user.State = requested
	events.UserStateChanged(room, userID, requested)

	switch requested {
	case model.UserLoaded, model.UserReadyForGameplay:
		promoteToPlaying(room, events)
	case model.UserFinishedPlay:
		if err := maybeFinishMatch(ctx, db, room, events, playlistEvents, logger); err != nil {
			return err
		}
	}

	recomputeState(room)
	return nil
}

// validateTransition enforces the edges of the client-driven portion of
// the state diagram in §4.3, beyond the blanket requestable-states check.
func validateTransition(from, to model.UserState) error {
	switch to {
	case model.UserReady:
		if from != model.UserIdle {
			return apperr.InvalidState("can only ready up from idle")
		}
	case model.UserLoaded:
		if from != model.UserWaitingForLoad {
			return apperr.InvalidState("can only report loaded while waiting for load")
		}
	case model.UserReadyForGameplay:
		if from != model.UserLoaded {
			return apperr.InvalidState("can only ready for gameplay once loaded")
		}
	case model.UserFinishedPlay:
		if from != model.UserPlaying {
			return apperr.InvalidState("can only finish play while playing")
		}
	case model.UserSpectating:
		if from != model.UserIdle {
			return apperr.InvalidState("can only begin spectating from idle")
		}
	case model.UserIdle:
		// Idle is reachable from any state: readying down, backing out of
		// a load wait (scenario 7), or acknowledging results.
	}
	return nil
}

// promoteToPlaying moves every gameplay-subgroup user into Playing once
// none of them remain in WaitingForLoad.
func promoteToPlaying(room *model.Room, events Events) {
	for i := range room.Users {
		if room.Users[i].State == model.UserWaitingForLoad {
			return
		}
	}
	for i := range room.Users {
		if effectivelyLoaded(room.Users[i].State) {
			room.Users[i].State = model.UserPlaying
			events.UserStateChanged(room, room.Users[i].UserID, model.UserPlaying)
		}
	}
}

// ForceGameplayStart is invoked by the force-gameplay-start countdown when
// it elapses: any user still stuck in WaitingForLoad is forced to Loaded,
// then the gameplay subgroup is promoted to Playing as normal. This is the
// "or timeout" half of the WaitingForLoad→Playing transition in §4.3.
func ForceGameplayStart(room *model.Room, events Events) {
	for i := range room.Users {
		if room.Users[i].State == model.UserWaitingForLoad {
			room.Users[i].State = model.UserLoaded
			events.UserStateChanged(room, room.Users[i].UserID, model.UserLoaded)
		}
	}
	promoteToPlaying(room, events)
	recomputeState(room)
}

// maybeFinishMatch moves every FinishedPlay user to Results and advances
// the playlist queue once no user remains in the gameplay subgroup.
func maybeFinishMatch(ctx context.Context, db database.Port, room *model.Room, events Events, playlistEvents playlist.Events, logger *slog.Logger) error {
	for i := range room.Users {
		if room.Users[i].State.InGameplaySubgroup() {
			return nil
		}
	}

	finished := false
	for i := range room.Users {
		if room.Users[i].State == model.UserFinishedPlay {
			room.Users[i].State = model.UserResults
			events.UserStateChanged(room, room.Users[i].UserID, model.UserResults)
			finished = true
		}
	}
	if !finished {
		return nil
	}

	if err := playlist.FinishCurrentItem(ctx, db, playlistEvents, room, logger); err != nil {
		return err
	}
	events.MatchFinished(room)
	return nil
}

// recomputeState derives Room.State from the user set per the invariants
// in model.Room's doc comment.
func recomputeState(room *model.Room) {
	var waiting, playing int
	for _, u := range room.Users {
		switch u.State {
		case model.UserWaitingForLoad:
			waiting++
		case model.UserLoaded, model.UserPlaying:
			playing++
		}
	}

	switch {
	case playing > 0:
		room.State = model.RoomPlaying
	case waiting > 0:
		room.State = model.RoomWaitingForLoad
	default:
		room.State = model.RoomOpen
	}
}
