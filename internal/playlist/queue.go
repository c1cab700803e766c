// Package playlist implements the per-room Playlist Queue (C5): ordered
// playlist items, queue-mode policy, expiration, and the "current item"
// pointer. Generalizes the teacher's room.operations.go shape (DB mirror
// write alongside an in-memory mutation, events fired after success) to
// the playlist's own validation rules.
package playlist

import (
	"context"
	"log/slog"
	"time"

	"github.com/peppy/osu-server-spectator/internal/apperr"
	"github.com/peppy/osu-server-spectator/internal/database"
	"github.com/peppy/osu-server-spectator/internal/model"
)

// nowFunc is overridable in tests.
var nowFunc = time.Now

// Events is the narrow capability the queue uses to announce mutations,
// kept separate from the hub itself per DESIGN.md's note on cyclic
// references — the queue never holds a reference back to the hub.
type Events interface {
	PlaylistItemAdded(room *model.Room, item model.PlaylistItem)
	PlaylistItemRemoved(room *model.Room, itemID uint64)
	PlaylistItemChanged(room *model.Room, item model.PlaylistItem)
}

// AddItem validates and appends a playlist item, subject to queue-mode
// authority and the beatmap-checksum/ruleset invariants.
func AddItem(ctx context.Context, db database.Port, events Events, room *model.Room, callerUserID int64, item model.PlaylistItem) error {
	if room.Settings.QueueMode == model.QueueModeHostOnly && callerUserID != room.HostUserID {
		return apperr.InvalidState("only the host may add playlist items in host-only queue mode")
	}

	if item.RulesetID < 0 || item.RulesetID > model.MaxLegacyRulesetID {
		return apperr.InvalidState("ruleset id %d is out of range", item.RulesetID)
	}

	checksum, err := db.GetBeatmapChecksum(ctx, item.BeatmapID)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseUnavailable, "failed to look up beatmap checksum", err)
	}
	if checksum == "" || checksum != item.BeatmapChecksum {
		return apperr.InvalidState("beatmap checksum mismatch for beatmap %d", item.BeatmapID)
	}

	item.ItemID = room.NextItemID()
	item.OwnerUserID = callerUserID
	item.Expired = false

	if err := db.AddPlaylistItem(ctx, room.RoomID, item); err != nil {
		return apperr.Wrap(apperr.KindDatabaseUnavailable, "failed to persist playlist item", err)
	}

	room.Playlist = append(room.Playlist, item)
	if room.Settings.PlaylistItemID == 0 {
		room.Settings.PlaylistItemID = item.ItemID
	}

	events.PlaylistItemAdded(room, item)
	return nil
}

// findItem returns a pointer into room.Playlist for itemID, or nil.
func findItem(room *model.Room, itemID uint64) *model.PlaylistItem {
	for i := range room.Playlist {
		if room.Playlist[i].ItemID == itemID {
			return &room.Playlist[i]
		}
	}
	return nil
}

// canMutate applies the shared authority/state rules for remove and edit:
// membership in this room is checked before ownership, per SPEC_FULL.md's
// resolution of the "ExternalItemsCanNotBeRemoved" open question.
func canMutate(room *model.Room, callerUserID int64, item *model.PlaylistItem) error {
	if item == nil {
		return apperr.InvalidState("playlist item does not belong to this room")
	}
	if item.Expired {
		return apperr.InvalidState("playlist item %d is already expired", item.ItemID)
	}
	if item.ItemID == room.Settings.PlaylistItemID {
		return apperr.InvalidState("the current playlist item cannot be modified")
	}
	if callerUserID != item.OwnerUserID && callerUserID != room.HostUserID {
		return apperr.InvalidState("user %d may not modify another user's playlist item", callerUserID)
	}
	return nil
}

// RemoveItem removes a queued (non-current, non-expired) item owned by
// the caller or the host.
func RemoveItem(ctx context.Context, db database.Port, events Events, room *model.Room, callerUserID int64, itemID uint64) error {
	item := findItem(room, itemID)
	if err := canMutate(room, callerUserID, item); err != nil {
		return err
	}

	if err := db.RemovePlaylistItem(ctx, room.RoomID, itemID); err != nil {
		return apperr.Wrap(apperr.KindDatabaseUnavailable, "failed to persist playlist item removal", err)
	}

	for i := range room.Playlist {
		if room.Playlist[i].ItemID == itemID {
			room.Playlist = append(room.Playlist[:i], room.Playlist[i+1:]...)
			break
		}
	}

	events.PlaylistItemRemoved(room, itemID)
	return nil
}

// EditItem replaces beatmap/ruleset fields on a queued item the caller
// owns (or is host of), revalidating beatmap checksum and ruleset range.
func EditItem(ctx context.Context, db database.Port, events Events, room *model.Room, callerUserID int64, edit model.PlaylistItem) error {
	item := findItem(room, edit.ItemID)
	if err := canMutate(room, callerUserID, item); err != nil {
		return err
	}

	if edit.RulesetID < 0 || edit.RulesetID > model.MaxLegacyRulesetID {
		return apperr.InvalidState("ruleset id %d is out of range", edit.RulesetID)
	}

	checksum, err := db.GetBeatmapChecksum(ctx, edit.BeatmapID)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseUnavailable, "failed to look up beatmap checksum", err)
	}
	if checksum == "" || checksum != edit.BeatmapChecksum {
		return apperr.InvalidState("beatmap checksum mismatch for beatmap %d", edit.BeatmapID)
	}

	item.BeatmapID = edit.BeatmapID
	item.BeatmapChecksum = edit.BeatmapChecksum
	item.RulesetID = edit.RulesetID

	if err := db.UpdatePlaylistItem(ctx, room.RoomID, *item); err != nil {
		return apperr.Wrap(apperr.KindDatabaseUnavailable, "failed to persist playlist item edit", err)
	}

	events.PlaylistItemChanged(room, *item)
	return nil
}

// FinishCurrentItem expires the current item and advances
// Settings.PlaylistItemID to the next unexpired item, per queue-mode
// ordering. logger may be nil in tests that don't care about the
// best-effort write below.
func FinishCurrentItem(ctx context.Context, db database.Port, events Events, room *model.Room, logger *slog.Logger) error {
	current := room.CurrentItem()
	if current == nil {
		return apperr.InvalidState("no current playlist item to finish")
	}

	now := nowFunc()
	current.Expired = true
	current.PlayedAt = &now

	if err := db.UpdatePlaylistItem(ctx, room.RoomID, *current); err != nil {
		// Best-effort write: log and swallow, do not block the queue.
		if logger != nil {
			logger.Warn("failed to persist finished playlist item", "roomID", room.RoomID, "itemID", current.ItemID, "error", err)
		}
	}

	next := selectNextItem(room, current)
	if next != nil {
		room.Settings.PlaylistItemID = next.ItemID
	}

	events.PlaylistItemChanged(room, *current)
	return nil
}

// selectNextItem picks the next unexpired item per queue-mode ordering:
// round-robin rotates owner, all-players follows enqueue order, host-only
// always selects the next item authored by the host.
func selectNextItem(room *model.Room, finished *model.PlaylistItem) *model.PlaylistItem {
	switch room.Settings.QueueMode {
	case model.QueueModeHostOnly:
		for i := range room.Playlist {
			item := &room.Playlist[i]
			if !item.Expired && item.OwnerUserID == room.HostUserID {
				return item
			}
		}
	case model.QueueModeAllPlayersRoundRobin:
		// Prefer the earliest-enqueued unexpired item not owned by the
		// user who owned the item that just finished, to rotate turns;
		// fall back to enqueue order if everything remaining is theirs.
		var fallback *model.PlaylistItem
		for i := range room.Playlist {
			item := &room.Playlist[i]
			if item.Expired {
				continue
			}
			if fallback == nil {
				fallback = item
			}
			if item.OwnerUserID != finished.OwnerUserID {
				return item
			}
		}
		return fallback
	default: // AllPlayers: enqueue order
		for i := range room.Playlist {
			item := &room.Playlist[i]
			if !item.Expired {
				return item
			}
		}
	}
	return nil
}
