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
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	// APIKey is optional; when empty the API is open.
	APIKey string `envconfig:"API_KEY"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".gantt/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"gantt/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	// Neo4j settings (used when Type == "neo4j"; projects and logs stay in BaseDir)
	Neo4jURI      string `envconfig:"NEO4J_URI" default:"neo4j://localhost:7687"`
	Neo4jUser     string `envconfig:"NEO4J_USER" default:"neo4j"`
	Neo4jPassword string `envconfig:"NEO4J_PASSWORD"`
	Neo4jDatabase string `envconfig:"NEO4J_DATABASE"`
}

type LogEnv struct {
	RetentionDays   int           `envconfig:"LOG_RETENTION_DAYS" default:"90"`
	CleanupInterval time.Duration `envconfig:"LOG_CLEANUP_INTERVAL" default:"24h"`
}

type Env struct {
	BaseEnv
	StorageEnv
	LogEnv
}

const namespace = "GANTT"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	switch env.StorageEnv.Type {
	case "local", "s3", "neo4j":
	default:
		return nil, fmt.Errorf("unknown storage type: %s", env.StorageEnv.Type)
	}
	if env.RetentionDays <= 0 {
		return nil, fmt.Errorf("LOG_RETENTION_DAYS must be positive, got %d", env.RetentionDays)
	}
	if env.CleanupInterval <= 0 {
		return nil, fmt.Errorf("LOG_CLEANUP_INTERVAL must be positive, got %s", env.CleanupInterval)
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

func (e *LogEnv) Retention() time.Duration {
	return time.Duration(e.RetentionDays) * 24 * time.Hour
}
