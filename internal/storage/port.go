// Package storage defines the IScoreStorage port (C2) and a Redis-backed
// implementation, grounded on the teacher's shared/redis key-building and
// JSON-marshal-then-Set convention.
package storage

import (
	"context"

	"github.com/peppy/osu-server-spectator/internal/model"
)

// Port is the IScoreStorage port. Any error is treated as terminal for
// that item by the upload pipeline — there is no retry.
type Port interface {
	Write(ctx context.Context, score model.Score) error
}
