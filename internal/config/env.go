package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3700"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
}

type CoordEnv struct {
	DBPath           string        `envconfig:"DB_PATH" default:".crewd/events.db"`
	HeartbeatTimeout time.Duration `envconfig:"HEARTBEAT_TIMEOUT" default:"2m"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"30s"`
	ReplayOnBoot     bool          `envconfig:"REPLAY_ON_BOOT" default:"true"`
}

type WatchEnv struct {
	Enabled    bool   `envconfig:"WATCH_ENABLED" default:"true"`
	ConfigFile string `envconfig:"CONFIG_FILE" default:"crewd.yaml"`
}

type ArchiveEnv struct {
	Type    string `envconfig:"ARCHIVE_TYPE" default:"local"`
	BaseDir string `envconfig:"ARCHIVE_BASE_DIR" default:".crewd/archive"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"ARCHIVE_S3_BUCKET"`
	S3Prefix string `envconfig:"ARCHIVE_S3_PREFIX" default:"crewd/"`
	S3Region string `envconfig:"ARCHIVE_S3_REGION" default:"us-east-1"`
}

type Env struct {
	BaseEnv
	CoordEnv
	WatchEnv
	ArchiveEnv
}

const namespace = "CREWD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
