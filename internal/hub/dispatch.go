package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/peppy/osu-server-spectator/internal/apperr"
	"github.com/peppy/osu-server-spectator/internal/model"
)

// Dispatch routes one decoded client RPC to the matching room-registry
// operation. It is the wire-level counterpart of the direct methods in
// hub.go (JoinRoom, StartMatch, ...), grounded on the teacher's RoomHandler action
// dispatch but kept as a single switch since this surface is a small fixed
// enum named explicitly (§4.8), not an open-ended command set.
func (h *Hub) Dispatch(ctx context.Context, userID int64, event string, payload json.RawMessage) error {
	switch event {
	case "join_room":
		var req struct {
			RoomID uint64 `json:"room_id"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return apperr.InvalidState("malformed join_room payload: %v", err)
		}
		conn, err := h.connFor(userID)
		if err != nil {
			return err
		}
		return h.JoinRoom(ctx, userID, req.RoomID, conn)

	case "leave_room":
		return h.LeaveRoom(ctx, userID)

	case "change_settings":
		var settings model.RoomSettings
		if err := json.Unmarshal(payload, &settings); err != nil {
			return apperr.InvalidState("malformed change_settings payload: %v", err)
		}
		return h.ChangeSettings(ctx, userID, settings)

	case "change_state":
		var req struct {
			State model.UserState `json:"state"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return apperr.InvalidState("malformed change_state payload: %v", err)
		}
		return h.ChangeState(ctx, userID, req.State)

	case "start_match":
		return h.StartMatch(ctx, userID)

	case "start_match_countdown":
		var req struct {
			DurationMS int64 `json:"duration_ms"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return apperr.InvalidState("malformed start_match_countdown payload: %v", err)
		}
		return h.StartMatchCountdown(ctx, userID, time.Duration(req.DurationMS)*time.Millisecond)

	case "add_playlist_item":
		var item model.PlaylistItem
		if err := json.Unmarshal(payload, &item); err != nil {
			return apperr.InvalidState("malformed add_playlist_item payload: %v", err)
		}
		return h.AddPlaylistItem(ctx, userID, item)

	case "remove_playlist_item":
		var req struct {
			ItemID uint64 `json:"item_id"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return apperr.InvalidState("malformed remove_playlist_item payload: %v", err)
		}
		return h.RemovePlaylistItem(ctx, userID, req.ItemID)

	case "send_match_request":
		var req struct {
			Type    string `json:"type"`
			Payload any    `json:"payload"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return apperr.InvalidState("malformed send_match_request payload: %v", err)
		}
		return h.SendMatchRequest(ctx, userID, req.Type, req.Payload)

	case "invoke_match_request":
		_, err := h.InvokeMatchRequest(ctx, userID)
		return err

	default:
		return apperr.NotFound("unknown event %q", event)
	}
}

// connFor returns the connection previously registered for userID, used to
// supply the connection for every join_room RPC.
func (h *Hub) connFor(userID int64) (Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.conns[userID]
	if !ok {
		return nil, apperr.NotFound("no connection registered for user %d", userID)
	}
	return entry.conn, nil
}
