// Package hub implements the Multiplayer Hub (C8): the dispatch surface
// translating client RPCs into room-registry operations under a Usage,
// and the fan-out of resulting events back to connections.
//
// Grounded on the teacher's handler.RoomHandler (an action-name dispatch
// table wrapping a shared RoomService) and nats.MessagePublisher
// (marshal-then-publish to a per-target subject, logged on failure) — the
// Hub keeps a local connection directory for same-process delivery and
// additionally republishes over NATS so other nodes in the cluster can
// relay to users connected there.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/peppy/osu-server-spectator/internal/apperr"
	"github.com/peppy/osu-server-spectator/internal/broadcaster"
	"github.com/peppy/osu-server-spectator/internal/countdown"
	"github.com/peppy/osu-server-spectator/internal/database"
	"github.com/peppy/osu-server-spectator/internal/matchtype"
	"github.com/peppy/osu-server-spectator/internal/model"
	"github.com/peppy/osu-server-spectator/internal/playlist"
	"github.com/peppy/osu-server-spectator/internal/registry"
	"github.com/peppy/osu-server-spectator/internal/room"
	"github.com/peppy/osu-server-spectator/internal/spectator"
	"github.com/peppy/osu-server-spectator/internal/upload"
)

// Conn is the narrow capability the hub needs from a transport-level
// connection: push a named event with an arbitrary payload.
type Conn interface {
	Send(event string, payload any) error
}

type connEntry struct {
	conn   Conn
	roomID uint64 // 0 if not currently in a room
}

const broadcastSubject = "spectator.broadcast"

func roomSubject(roomID uint64) string {
	return fmt.Sprintf("spectator.room.%d", roomID)
}

// Hub is the process-wide RPC dispatch surface and connection directory.
// Its own bookkeeping is guarded by a short-held lock distinct from any
// room's Usage, per §5 "Shared registries."
type Hub struct {
	reg        *registry.Registry
	db         database.Port
	countdowns *countdown.Manager
	pipeline   *upload.Pipeline
	nc         *nats.Conn
	logger     *slog.Logger

	forceGameplayStartTimeout  time.Duration
	matchStartCountdownDefault time.Duration

	mu    sync.Mutex
	conns map[int64]*connEntry
}

// Defaults used until the Set* overrides below are called, matching
// config.RoomConfig's own defaults.
const (
	defaultForceGameplayStartTimeout = 30 * time.Second
	defaultMatchStartCountdown       = 5 * time.Second
)

// New constructs a hub. nc may be nil, in which case fan-out stays
// local to this process (used by tests and single-node deployments).
func New(reg *registry.Registry, db database.Port, countdowns *countdown.Manager, pipeline *upload.Pipeline, nc *nats.Conn) *Hub {
	return &Hub{
		reg:                        reg,
		db:                         db,
		countdowns:                 countdowns,
		pipeline:                   pipeline,
		nc:                         nc,
		logger:                     slog.Default().With("component", "MultiplayerHub"),
		conns:                      make(map[int64]*connEntry),
		forceGameplayStartTimeout:  defaultForceGameplayStartTimeout,
		matchStartCountdownDefault: defaultMatchStartCountdown,
	}
}

// SetForceGameplayStartTimeout overrides how long WaitingForLoad users are
// given before stragglers are forced through to Playing.
func (h *Hub) SetForceGameplayStartTimeout(d time.Duration) {
	h.forceGameplayStartTimeout = d
}

// SetMatchStartCountdownDefault overrides the countdown duration used by
// StartMatchCountdown when the caller does not supply one.
func (h *Hub) SetMatchStartCountdownDefault(d time.Duration) {
	h.matchStartCountdownDefault = d
}

// Connect registers a connection for userID, outside of any room.
func (h *Hub) Connect(userID int64, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[userID] = &connEntry{conn: conn}
}

// Disconnect tears down userID's connection, implicitly leaving any room
// it was a member of.
func (h *Hub) Disconnect(ctx context.Context, userID int64) {
	if err := h.LeaveRoom(ctx, userID); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		h.logger.Warn("error leaving room on disconnect", "userID", userID, "error", err)
	}
	h.mu.Lock()
	delete(h.conns, userID)
	h.mu.Unlock()
}

func (h *Hub) usageForUser(ctx context.Context, userID int64) (*registry.Usage, error) {
	h.mu.Lock()
	entry, ok := h.conns[userID]
	h.mu.Unlock()
	if !ok || entry.roomID == 0 {
		return nil, apperr.NotFound("user %d is not in a room", userID)
	}
	return h.reg.GetForUse(ctx, entry.roomID)
}

// JoinRoom creates the room on first join (backed by its DB record) and
// adds userID as a member.
func (h *Hub) JoinRoom(ctx context.Context, userID int64, roomID uint64, conn Conn) error {
	usage, err := h.reg.TryCreate(ctx, roomID, func() *model.Room {
		record, _ := h.db.GetRoom(ctx, roomID)
		settings := model.RoomSettings{QueueMode: model.QueueModeAllPlayers}
		if record != nil {
			settings.Name = record.Name
			settings.MatchType = record.MatchType
		}
		return &model.Room{RoomID: roomID, Settings: settings}
	})
	if err != nil {
		return err
	}
	defer usage.Release()

	// Register the connection before joining so the joining user is a
	// recipient of the room events the join itself fires.
	h.mu.Lock()
	prev, hadPrev := h.conns[userID]
	h.conns[userID] = &connEntry{conn: conn, roomID: roomID}
	h.mu.Unlock()

	if _, err := room.JoinRoom(usage.Room(), h, userID); err != nil {
		h.mu.Lock()
		if hadPrev {
			h.conns[userID] = prev
		} else {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		return err
	}

	return nil
}

// LeaveRoom removes userID from whatever room it is in, evicting the room
// once it is empty.
func (h *Hub) LeaveRoom(ctx context.Context, userID int64) error {
	h.mu.Lock()
	entry, ok := h.conns[userID]
	h.mu.Unlock()
	if !ok || entry.roomID == 0 {
		return apperr.NotFound("user %d is not in a room", userID)
	}

	usage, err := h.reg.GetForUse(ctx, entry.roomID)
	if err != nil {
		return err
	}
	defer usage.Release()

	if err := room.LeaveRoom(usage.Room(), h, userID); err != nil {
		return err
	}

	h.mu.Lock()
	entry.roomID = 0
	h.mu.Unlock()

	if len(usage.Room().Users) == 0 {
		if err := h.db.MarkRoomEnded(ctx, usage.Room().RoomID); err != nil {
			h.logger.Error("failed to mark room ended", "roomID", usage.Room().RoomID, "error", err)
		}
		h.reg.Evict(usage.Room().RoomID)
	}

	return nil
}

// evictAbandonedRooms inspects every registered room and force-closes any
// left at zero users for longer than maxAge — the backstop for rooms that
// missed LeaveRoom's immediate eviction (most commonly: TryCreate
// registered a new room but the creator's first JoinRoom then failed).
func (h *Hub) evictAbandonedRooms(ctx context.Context, maxAge time.Duration) int {
	evicted := 0

	for _, roomID := range h.reg.RoomIDs() {
		usage, err := h.reg.GetForUse(ctx, roomID)
		if err != nil {
			continue
		}

		r := usage.Room()
		if len(r.Users) == 0 && time.Since(r.LastActivityAt) > maxAge {
			if err := h.db.MarkRoomEnded(ctx, r.RoomID); err != nil {
				h.logger.Error("failed to mark abandoned room ended", "roomID", r.RoomID, "error", err)
			}
			h.reg.Evict(r.RoomID)
			evicted++
		}

		usage.Release()
	}

	return evicted
}

// ChangeSettings applies new room settings on behalf of the host.
func (h *Hub) ChangeSettings(ctx context.Context, userID int64, settings model.RoomSettings) error {
	usage, err := h.usageForUser(ctx, userID)
	if err != nil {
		return err
	}
	defer usage.Release()
	return room.ChangeSettings(usage.Room(), h, userID, settings)
}

// ChangeState applies a client-requested user-state transition.
func (h *Hub) ChangeState(ctx context.Context, userID int64, state model.UserState) error {
	usage, err := h.usageForUser(ctx, userID)
	if err != nil {
		return err
	}
	defer usage.Release()
	return room.ChangeState(ctx, h.db, usage.Room(), h, h, userID, state, h.logger)
}

// StartMatch begins the match for ready users, as host.
func (h *Hub) StartMatch(ctx context.Context, userID int64) error {
	usage, err := h.usageForUser(ctx, userID)
	if err != nil {
		return err
	}
	defer usage.Release()

	if err := room.StartMatch(usage.Room(), h, userID); err != nil {
		return err
	}
	if err := h.db.MarkRoomStarted(ctx, usage.Room().RoomID); err != nil {
		h.logger.Error("failed to mark room started", "roomID", usage.Room().RoomID, "error", err)
	}

	h.countdowns.Start(usage, h, model.CountdownForceGameplayStart, h.forceGameplayStartTimeout,
		func(_ context.Context, forced *registry.Usage) {
			room.ForceGameplayStart(forced.Room(), h)
		})
	return nil
}

// StartMatchCountdown begins a host-requested countdown that auto-starts
// the match when it elapses or is skipped, unless stopped first. duration <= 0
// falls back to matchStartCountdownDefault.
func (h *Hub) StartMatchCountdown(ctx context.Context, userID int64, duration time.Duration) error {
	usage, err := h.usageForUser(ctx, userID)
	if err != nil {
		return err
	}
	defer usage.Release()

	r := usage.Room()
	if userID != r.HostUserID {
		return apperr.NotAuthorized("user %d is not the host of room %d", userID, r.RoomID)
	}
	if r.State != model.RoomOpen {
		return apperr.InvalidState("match already in progress")
	}

	if duration <= 0 {
		duration = h.matchStartCountdownDefault
	}

	h.countdowns.Start(usage, h, model.CountdownMatchStart, duration,
		func(ctx context.Context, forced *registry.Usage) {
			if err := room.StartMatch(forced.Room(), h, forced.Room().HostUserID); err != nil {
				h.logger.Info("match-start countdown elapsed without starting", "roomID", forced.Room().RoomID, "error", err)
				return
			}
			if err := h.db.MarkRoomStarted(ctx, forced.Room().RoomID); err != nil {
				h.logger.Error("failed to mark room started", "roomID", forced.Room().RoomID, "error", err)
			}
			h.countdowns.Start(forced, h, model.CountdownForceGameplayStart, h.forceGameplayStartTimeout,
				func(_ context.Context, forced2 *registry.Usage) {
					room.ForceGameplayStart(forced2.Room(), h)
				})
		})
	return nil
}

// AddPlaylistItem queues a new playlist item, subject to queue-mode policy.
func (h *Hub) AddPlaylistItem(ctx context.Context, userID int64, item model.PlaylistItem) error {
	usage, err := h.usageForUser(ctx, userID)
	if err != nil {
		return err
	}
	defer usage.Release()
	return playlist.AddItem(ctx, h.db, h, usage.Room(), userID, item)
}

// RemovePlaylistItem removes a queued item the caller owns, or is host of.
func (h *Hub) RemovePlaylistItem(ctx context.Context, userID int64, itemID uint64) error {
	usage, err := h.usageForUser(ctx, userID)
	if err != nil {
		return err
	}
	defer usage.Release()
	return playlist.RemoveItem(ctx, h.db, h, usage.Room(), userID, itemID)
}

// SendMatchRequest forwards a match-type-specific request to everyone in
// the room (e.g. a team-change request in team-versus mode).
func (h *Hub) SendMatchRequest(ctx context.Context, userID int64, requestType string, payload any) error {
	usage, err := h.usageForUser(ctx, userID)
	if err != nil {
		return err
	}
	roomID := usage.Room().RoomID
	usage.Release()

	h.sendToRoom(roomID, "match_request", struct {
		UserID  int64  `json:"userId"`
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{userID, requestType, payload})
	return nil
}

// InvokeMatchRequest aggregates and broadcasts match-type-specific
// results (e.g. final team standings).
func (h *Hub) InvokeMatchRequest(ctx context.Context, userID int64) ([]matchtype.ResultSummary, error) {
	usage, err := h.usageForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer usage.Release()

	strategy := matchtype.For(usage.Room().Settings.MatchType)
	results := strategy.AggregateResults(usage.Room())
	h.sendToRoom(usage.Room().RoomID, "match_results", results)
	return results, nil
}

func (h *Hub) sendToRoom(roomID uint64, event string, payload any) {
	h.mu.Lock()
	var targets []Conn
	for _, e := range h.conns {
		if e.roomID == roomID {
			targets = append(targets, e.conn)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.Send(event, payload); err != nil {
			h.logger.Warn("failed to send event to connection", "event", event, "error", err)
		}
	}
	h.publishRemote(roomSubject(roomID), event, payload)
}

func (h *Hub) sendToUsers(userIDs []int64, event string, payload any) {
	h.mu.Lock()
	var targets []Conn
	for _, id := range userIDs {
		if e, ok := h.conns[id]; ok {
			targets = append(targets, e.conn)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.Send(event, payload); err != nil {
			h.logger.Warn("failed to send event to connection", "event", event, "error", err)
		}
	}
}

func (h *Hub) broadcastAll(event string, payload any) {
	h.mu.Lock()
	targets := make([]Conn, 0, len(h.conns))
	for _, e := range h.conns {
		targets = append(targets, e.conn)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.Send(event, payload); err != nil {
			h.logger.Warn("failed to send broadcast event to connection", "event", event, "error", err)
		}
	}
	h.publishRemote(broadcastSubject, event, payload)
}

func (h *Hub) publishRemote(subject, event string, payload any) {
	if h.nc == nil {
		return
	}
	data, err := json.Marshal(struct {
		Event   string `json:"event"`
		Payload any    `json:"payload"`
	}{event, payload})
	if err != nil {
		h.logger.Error("failed to marshal fan-out message", "event", event, "error", err)
		return
	}
	if err := h.nc.Publish(subject, data); err != nil {
		h.logger.Warn("failed to publish fan-out message", "subject", subject, "error", err)
	}
}

// The following methods satisfy room.Events.

func (h *Hub) UserJoined(r *model.Room, user model.RoomUser) {
	h.sendToRoom(r.RoomID, "user_joined", user)
}

func (h *Hub) UserLeft(r *model.Room, userID int64) {
	h.sendToRoom(r.RoomID, "user_left", userID)
}

func (h *Hub) UserStateChanged(r *model.Room, userID int64, state model.UserState) {
	h.sendToRoom(r.RoomID, "user_state_changed", struct {
		UserID int64  `json:"userId"`
		State  string `json:"state"`
	}{userID, state.String()})
}

func (h *Hub) HostChanged(r *model.Room, newHostID int64) {
	h.sendToRoom(r.RoomID, "host_changed", newHostID)
}

func (h *Hub) SettingsChanged(r *model.Room, settings model.RoomSettings) {
	h.sendToRoom(r.RoomID, "settings_changed", settings)
}

func (h *Hub) MatchStarted(r *model.Room) {
	h.sendToRoom(r.RoomID, "match_started", nil)
}

func (h *Hub) LoadRequested(r *model.Room, userIDs []int64) {
	h.sendToUsers(userIDs, "load_requested", nil)
}

func (h *Hub) MatchFinished(r *model.Room) {
	h.sendToRoom(r.RoomID, "match_finished", nil)
}

// The following methods satisfy playlist.Events.

func (h *Hub) PlaylistItemAdded(r *model.Room, item model.PlaylistItem) {
	h.sendToRoom(r.RoomID, "playlist_item_added", item)
}

func (h *Hub) PlaylistItemRemoved(r *model.Room, itemID uint64) {
	h.sendToRoom(r.RoomID, "playlist_item_removed", itemID)
}

func (h *Hub) PlaylistItemChanged(r *model.Room, item model.PlaylistItem) {
	h.sendToRoom(r.RoomID, "playlist_item_changed", item)
}

// The following methods satisfy countdown.Events.

func (h *Hub) CountdownStarted(r *model.Room, c *model.Countdown) {
	h.sendToRoom(r.RoomID, "countdown_started", c)
}

func (h *Hub) CountdownStopped(r *model.Room, c *model.Countdown) {
	h.sendToRoom(r.RoomID, "countdown_stopped", c)
}

// The following method satisfies broadcaster.Events.

func (h *Hub) BeatmapSetsUpdated(updates database.BeatmapSetUpdates) {
	h.broadcastAll("beatmapsets_updated", updates)
}

// The following methods satisfy spectator.Events.

func (h *Hub) UserBeganPlaying(userID int64, token uint64) {
	h.broadcastAll("user_began_playing", struct {
		UserID int64  `json:"userId"`
		Token  uint64 `json:"token"`
	}{userID, token})
}

func (h *Hub) UserFinishedPlaying(userID int64, token uint64) {
	h.broadcastAll("user_finished_playing", struct {
		UserID int64  `json:"userId"`
		Token  uint64 `json:"token"`
	}{userID, token})
}

var _ room.Events = (*Hub)(nil)
var _ playlist.Events = (*Hub)(nil)
var _ countdown.Events = (*Hub)(nil)
var _ broadcaster.Events = (*Hub)(nil)
var _ spectator.Events = (*Hub)(nil)
