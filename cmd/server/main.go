package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/peppy/osu-server-spectator/internal/broadcaster"
	"github.com/peppy/osu-server-spectator/internal/config"
	"github.com/peppy/osu-server-spectator/internal/countdown"
	"github.com/peppy/osu-server-spectator/internal/database"
	"github.com/peppy/osu-server-spectator/internal/health"
	"github.com/peppy/osu-server-spectator/internal/hub"
	"github.com/peppy/osu-server-spectator/internal/registry"
	"github.com/peppy/osu-server-spectator/internal/spectator"
	"github.com/peppy/osu-server-spectator/internal/storage"
	"github.com/peppy/osu-server-spectator/internal/transport"
	"github.com/peppy/osu-server-spectator/internal/upload"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, err := connectNATS(cfg.NATS)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	logger.Info("connected to NATS", "url", cfg.NATS.URL)

	redisClient := connectRedis(cfg.Redis)
	defer redisClient.Close()
	logger.Info("connected to Redis", "host", cfg.Redis.Host)

	pool, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to PostgreSQL", "host", cfg.Database.Host)

	db := database.NewPostgres(pool)
	store := storage.NewRedis(redisClient, 0)

	reg := registry.New()
	countdowns := countdown.NewManager(reg)
	pipeline := upload.NewPipeline(upload.Config{
		Concurrency:     cfg.Upload.ReplayUploaderConcurrency,
		TimeoutInterval: cfg.Upload.TimeoutInterval,
		Enabled:         cfg.Upload.SaveReplays,
	}, db, store)

	h := hub.New(reg, db, countdowns, pipeline, nc)
	h.SetForceGameplayStartTimeout(cfg.Room.ForceGameplayStartTimeout)
	h.SetMatchStartCountdownDefault(cfg.Room.MatchStartCountdownDuration)
	tracker := spectator.NewTracker(h, pipeline)

	meta := broadcaster.New(db, h, 5*time.Second)
	meta.Start()
	defer meta.Stop()

	sweeper := hub.NewEvictionSweeper(h, cfg.Room.EvictCheckInterval, cfg.Room.EvictAfter)
	sweeper.Start()
	defer sweeper.Stop()

	healthChecker := health.NewChecker(nc, redisClient, pool)
	go startHTTPServer(h, tracker, healthChecker, logger)

	logger.Info("spectator server started", "name", cfg.App.Name)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	cancel()
	pipeline.Dispose()
	logger.Info("spectator server stopped")
}

// upgrader is used by the websocket accept loop mounted alongside the
// health endpoints. Authentication and framing beyond the envelope are
// handled upstream of this package, per scope.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func startHTTPServer(h *hub.Hub, tracker *spectator.Tracker, healthChecker *health.Checker, logger *slog.Logger) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	healthChecker.RegisterRoutes(r)

	r.GET("/connect", func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		conn := transport.New(ws)
		h.Connect(userID, conn)
		go handleConnection(h, tracker, userID, conn, logger)
	})

	logger.Info("HTTP server started", "addr", ":8081")
	if err := r.Run(":8081"); err != nil {
		logger.Error("HTTP server failed", "error", err)
	}
}

// handleConnection reads RPCs off conn until it closes, routing each to
// the multiplayer hub or the spectator tracker depending on event name.
func handleConnection(h *hub.Hub, tracker *spectator.Tracker, userID int64, conn *transport.Conn, logger *slog.Logger) {
	defer conn.Close()
	defer h.Disconnect(context.Background(), userID)
	defer tracker.Disconnect(userID)

	for {
		event, payload, err := conn.ReadEvent()
		if err != nil {
			return
		}

		ctx := context.Background()
		if handled, err := tracker.Dispatch(userID, event, payload); handled {
			if err != nil {
				logger.Warn("spectator RPC failed", "userID", userID, "event", event, "error", err)
			}
			continue
		}
		if err := h.Dispatch(ctx, userID, event, payload); err != nil {
			logger.Warn("multiplayer RPC failed", "userID", userID, "event", event, "error", err)
		}
	}
}

func connectNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	return nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
}

func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}
