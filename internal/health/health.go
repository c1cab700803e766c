// Package health exposes readiness and liveness HTTP endpoints over the
// process's external dependencies, grounded on the teacher's
// health.Checker (per-dependency timeout-bounded ping, aggregated status)
// but rebuilt on gin rather than net/http to match this repo's own RPC
// surface conventions.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Status is the aggregated connectivity of the process's dependencies.
type Status struct {
	NATS     string `json:"nats"`
	Redis    string `json:"redis"`
	Database string `json:"database"`
}

func (s Status) healthy() bool {
	return s.NATS == "connected" && s.Redis == "connected" && s.Database == "connected"
}

// Checker reports the NATS connection state and pings Redis and the
// database, each ping bounded by a 2s timeout.
type Checker struct {
	nc    *nats.Conn
	redis *redis.Client
	db    *pgxpool.Pool
}

// NewChecker constructs a checker over the process's live connections.
func NewChecker(nc *nats.Conn, redisClient *redis.Client, db *pgxpool.Pool) *Checker {
	return &Checker{nc: nc, redis: redisClient, db: db}
}

// Check reads the NATS connection state, pings Redis and the database, and
// returns the aggregated status.
func (c *Checker) Check(ctx context.Context) Status {
	var status Status

	if c.nc != nil && c.nc.IsConnected() {
		status.NATS = "connected"
	} else {
		status.NATS = "disconnected"
	}

	redisCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if c.redis != nil && c.redis.Ping(redisCtx).Err() == nil {
		status.Redis = "connected"
	} else {
		status.Redis = "disconnected"
	}

	dbCtx, cancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer cancel2()
	if c.db != nil && c.db.Ping(dbCtx) == nil {
		status.Database = "connected"
	} else {
		status.Database = "disconnected"
	}

	return status
}

// RegisterRoutes mounts /health (liveness, always 200) and /ready
// (readiness, 503 if any dependency is down) on r.
func (c *Checker) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(ctx *gin.Context) {
		status := c.Check(ctx.Request.Context())
		if !status.healthy() {
			ctx.JSON(http.StatusServiceUnavailable, status)
			return
		}
		ctx.JSON(http.StatusOK, status)
	})
}
