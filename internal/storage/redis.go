package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peppy/osu-server-spectator/internal/model"
)

const scoreKeyPrefix = "spectator:score:"

func buildScoreKey(onlineID uint64) string {
	return fmt.Sprintf("%s%d", scoreKeyPrefix, onlineID)
}

// Redis is a Port implementation backing replay/score artifacts with a
// Redis key per online score id. There is no third-party blob-store client
// anywhere in the retrieval pack; Redis is the closest
// available key-value store the teacher's own stack already wires in.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an already-connected client. ttl of zero means "keep
// forever" (no expiry set).
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (s *Redis) Write(ctx context.Context, score model.Score) error {
	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}

	key := buildScoreKey(score.ScoreInfo.OnlineID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("write score %d: %w", score.ScoreInfo.OnlineID, err)
	}
	return nil
}
