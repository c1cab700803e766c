package playlist

import (
	"context"
	"testing"

	"github.com/peppy/osu-server-spectator/internal/apperr"
	"github.com/peppy/osu-server-spectator/internal/database"
	"github.com/peppy/osu-server-spectator/internal/model"
)

type recordingEvents struct {
	added, removed, changed int
}

func (e *recordingEvents) PlaylistItemAdded(*model.Room, model.PlaylistItem)   { e.added++ }
func (e *recordingEvents) PlaylistItemRemoved(*model.Room, uint64)            { e.removed++ }
func (e *recordingEvents) PlaylistItemChanged(*model.Room, model.PlaylistItem) { e.changed++ }

func newTestRoom(hostID int64) *model.Room {
	return &model.Room{
		RoomID:     1,
		HostUserID: hostID,
		Settings:   model.RoomSettings{QueueMode: model.QueueModeAllPlayers},
	}
}

func TestAddItem_Success(t *testing.T) {
	db := database.NewMock()
	db.BeatmapChecksums[100] = "abc"
	room := newTestRoom(1)
	events := &recordingEvents{}

	err := AddItem(context.Background(), db, events, room, 1, model.PlaylistItem{
		BeatmapID:       100,
		BeatmapChecksum: "abc",
		RulesetID:       0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(room.Playlist) != 1 {
		t.Fatalf("expected 1 item, got %d", len(room.Playlist))
	}
	if events.added != 1 {
		t.Errorf("expected 1 added event, got %d", events.added)
	}
}

func TestAddItem_ChecksumMismatch(t *testing.T) {
	db := database.NewMock()
	db.BeatmapChecksums[100] = "abc"
	room := newTestRoom(1)

	err := AddItem(context.Background(), db, &recordingEvents{}, room, 1, model.PlaylistItem{
		BeatmapID:       100,
		BeatmapChecksum: "wrong",
	})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

// TestAddCustomRulesetThrows is scenario 9.
func TestAddCustomRulesetThrows(t *testing.T) {
	db := database.NewMock()
	db.BeatmapChecksums[100] = "abc"
	room := newTestRoom(1)

	for _, ruleset := range []int{-1, model.MaxLegacyRulesetID + 1} {
		err := AddItem(context.Background(), db, &recordingEvents{}, room, 1, model.PlaylistItem{
			BeatmapID: 100, BeatmapChecksum: "abc", RulesetID: ruleset,
		})
		if !apperr.Is(err, apperr.KindInvalidState) {
			t.Errorf("ruleset %d: expected InvalidState, got %v", ruleset, err)
		}
	}
}

func TestAddItem_HostOnlyRejectsNonHost(t *testing.T) {
	db := database.NewMock()
	db.BeatmapChecksums[100] = "abc"
	room := newTestRoom(1)
	room.Settings.QueueMode = model.QueueModeHostOnly

	err := AddItem(context.Background(), db, &recordingEvents{}, room, 2, model.PlaylistItem{
		BeatmapID: 100, BeatmapChecksum: "abc",
	})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

// TestUsersCanNotRemoveOtherUsersItems is scenario 8.
func TestUsersCanNotRemoveOtherUsersItems(t *testing.T) {
	db := database.NewMock()
	db.BeatmapChecksums[100] = "abc"
	room := newTestRoom(1)
	events := &recordingEvents{}

	_ = AddItem(context.Background(), db, events, room, 1, model.PlaylistItem{
		BeatmapID: 100, BeatmapChecksum: "abc",
	})
	// Advance the current pointer off this item so it isn't rejected as "current".
	room.Settings.PlaylistItemID = 999

	err := RemoveItem(context.Background(), db, events, room, 2, room.Playlist[0].ItemID)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
	if len(db.PlaylistItems[room.RoomID]) != 1 {
		t.Error("expected no DB mutation from a rejected removal")
	}
	if events.removed != 0 {
		t.Error("expected no event emitted from a rejected removal")
	}
}

// TestCurrentItemCanNotBeRemoved is scenario 10.
func TestCurrentItemCanNotBeRemoved(t *testing.T) {
	db := database.NewMock()
	db.BeatmapChecksums[100] = "abc"
	room := newTestRoom(1)
	events := &recordingEvents{}

	_ = AddItem(context.Background(), db, events, room, 1, model.PlaylistItem{
		BeatmapID: 100, BeatmapChecksum: "abc",
	})
	currentID := room.Playlist[0].ItemID

	err := RemoveItem(context.Background(), db, events, room, 1, currentID)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestFinishCurrentItem_AdvancesQueue(t *testing.T) {
	db := database.NewMock()
	db.BeatmapChecksums[100] = "abc"
	room := newTestRoom(1)
	events := &recordingEvents{}

	_ = AddItem(context.Background(), db, events, room, 1, model.PlaylistItem{BeatmapID: 100, BeatmapChecksum: "abc"})
	_ = AddItem(context.Background(), db, events, room, 1, model.PlaylistItem{BeatmapID: 100, BeatmapChecksum: "abc"})

	firstID := room.Settings.PlaylistItemID

	if err := FinishCurrentItem(context.Background(), db, events, room, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !room.Playlist[0].Expired {
		t.Error("expected first item to be expired")
	}
	if room.Settings.PlaylistItemID == firstID {
		t.Error("expected playlist pointer to advance")
	}
}

func TestFinishCurrentItem_NoneToFinish(t *testing.T) {
	room := newTestRoom(1)
	err := FinishCurrentItem(context.Background(), database.NewMock(), &recordingEvents{}, room, nil)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}
