// Package config loads process-wide configuration via viper, matching the
// teacher's mapstructure-tagged struct shape. Mutation during tests is done
// through explicit setters (e.g. Config.SetSaveReplays), never globals.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration object passed to constructors.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Room     RoomConfig     `mapstructure:"room"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
}

// RoomConfig governs countdown and eviction defaults for the room engine.
type RoomConfig struct {
	MatchStartCountdownDuration time.Duration `mapstructure:"match_start_countdown_duration"`
	ForceGameplayStartTimeout   time.Duration `mapstructure:"force_gameplay_start_timeout"`
	EvictAfter                  time.Duration `mapstructure:"evict_after"`
	EvictCheckInterval          time.Duration `mapstructure:"evict_check_interval"`
}

// UploadConfig recognizes the options named in the spec's external
// interfaces: SaveReplays and ReplayUploaderConcurrency.
type UploadConfig struct {
	SaveReplays               bool          `mapstructure:"save_replays"`
	ReplayUploaderConcurrency int           `mapstructure:"replay_uploader_concurrency"`
	TimeoutInterval           time.Duration `mapstructure:"timeout_interval"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

func defaults() Config {
	return Config{
		App: AppConfig{Name: "osu-server-spectator", LogLevel: "info"},
		Room: RoomConfig{
			MatchStartCountdownDuration: 5 * time.Second,
			ForceGameplayStartTimeout:   30 * time.Second,
			EvictAfter:                  30 * time.Minute,
			EvictCheckInterval:          5 * time.Minute,
		},
		Upload: UploadConfig{
			SaveReplays:               false,
			ReplayUploaderConcurrency: 1,
			TimeoutInterval:           30 * time.Second,
		},
	}
}

// Load reads configuration from configPath (yaml), seeding viper first from
// a local .env file if present — matching the pack's local-dev convention
// of calling godotenv.Load() before reading the real config.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("SPECTATOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetSaveReplays sets Upload.SaveReplays on this Config. A pipeline already
// constructed from it keeps its own copy of the setting; a running pipeline
// is switched with upload.Pipeline.SetEnabled.
func (c *Config) SetSaveReplays(enabled bool) {
	c.Upload.SaveReplays = enabled
}
