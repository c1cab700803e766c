package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peppy/osu-server-spectator/internal/model"
)

// Postgres is the pgxpool-backed Port implementation, grounded on the
// teacher's repository package query style.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) GetScoreFromToken(ctx context.Context, token uint64) (*model.ResolvedIdentity, error) {
	const query = `
		SELECT online_id, passed
		FROM score_tokens
		WHERE token = $1 AND online_id IS NOT NULL
	`

	var identity model.ResolvedIdentity
	err := p.pool.QueryRow(ctx, query, token).Scan(&identity.OnlineID, &identity.Passed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (p *Postgres) GetBeatmapChecksum(ctx context.Context, beatmapID uint64) (string, error) {
	const query = `SELECT checksum FROM beatmaps WHERE id = $1`

	var checksum string
	err := p.pool.QueryRow(ctx, query, beatmapID).Scan(&checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return checksum, nil
}

func (p *Postgres) GetRoom(ctx context.Context, roomID uint64) (*model.RoomRecord, error) {
	const query = `
		SELECT id, name, match_type, started_at, ended_at
		FROM multiplayer_rooms WHERE id = $1
	`

	var record model.RoomRecord
	err := p.pool.QueryRow(ctx, query, roomID).Scan(
		&record.RoomID, &record.Name, &record.MatchType, &record.StartedAt, &record.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (p *Postgres) MarkRoomStarted(ctx context.Context, roomID uint64) error {
	const query = `UPDATE multiplayer_rooms SET started_at = now() WHERE id = $1`
	_, err := p.pool.Exec(ctx, query, roomID)
	return err
}

func (p *Postgres) MarkRoomEnded(ctx context.Context, roomID uint64) error {
	const query = `UPDATE multiplayer_rooms SET ended_at = now() WHERE id = $1`
	_, err := p.pool.Exec(ctx, query, roomID)
	return err
}

func (p *Postgres) AddPlaylistItem(ctx context.Context, roomID uint64, item model.PlaylistItem) error {
	const query = `
		INSERT INTO multiplayer_playlist_items
			(id, room_id, owner_user_id, beatmap_id, beatmap_checksum, ruleset_id, expired)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.pool.Exec(ctx, query,
		item.ItemID, roomID, item.OwnerUserID, item.BeatmapID, item.BeatmapChecksum, item.RulesetID, item.Expired,
	)
	return err
}

func (p *Postgres) RemovePlaylistItem(ctx context.Context, roomID uint64, itemID uint64) error {
	const query = `DELETE FROM multiplayer_playlist_items WHERE room_id = $1 AND id = $2`
	_, err := p.pool.Exec(ctx, query, roomID, itemID)
	return err
}

func (p *Postgres) UpdatePlaylistItem(ctx context.Context, roomID uint64, item model.PlaylistItem) error {
	const query = `
		UPDATE multiplayer_playlist_items
		SET beatmap_id = $3, beatmap_checksum = $4, ruleset_id = $5, expired = $6, played_at = $7
		WHERE room_id = $1 AND id = $2
	`
	_, err := p.pool.Exec(ctx, query,
		roomID, item.ItemID, item.BeatmapID, item.BeatmapChecksum, item.RulesetID, item.Expired, item.PlayedAt,
	)
	return err
}

func (p *Postgres) GetAllPlaylistItems(ctx context.Context, roomID uint64) ([]model.PlaylistItem, error) {
	const query = `
		SELECT id, owner_user_id, beatmap_id, beatmap_checksum, ruleset_id, expired, played_at
		FROM multiplayer_playlist_items WHERE room_id = $1 ORDER BY id
	`

	rows, err := p.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.PlaylistItem
	for rows.Next() {
		var item model.PlaylistItem
		if err := rows.Scan(
			&item.ItemID, &item.OwnerUserID, &item.BeatmapID, &item.BeatmapChecksum,
			&item.RulesetID, &item.Expired, &item.PlayedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (p *Postgres) GetUpdatedBeatmapSets(ctx context.Context, since uint32) (BeatmapSetUpdates, error) {
	const query = `
		SELECT beatmapset_id, queue_id
		FROM beatmapset_update_queue
		WHERE queue_id > $1
		ORDER BY queue_id
	`

	rows, err := p.pool.Query(ctx, query, since)
	if err != nil {
		return BeatmapSetUpdates{}, err
	}
	defer rows.Close()

	updates := BeatmapSetUpdates{LastProcessedQueueID: since}
	for rows.Next() {
		var beatmapSetID uint64
		var queueID uint32
		if err := rows.Scan(&beatmapSetID, &queueID); err != nil {
			return BeatmapSetUpdates{}, err
		}
		updates.BeatmapSetIDs = append(updates.BeatmapSetIDs, beatmapSetID)
		if queueID > updates.LastProcessedQueueID {
			updates.LastProcessedQueueID = queueID
		}
	}
	return updates, rows.Err()
}
