package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "3100", env.HTTPPort)
	assert.Equal(t, "local", env.StorageEnv.Type)
	assert.Equal(t, 90, env.RetentionDays)
	assert.Equal(t, 24*time.Hour, env.CleanupInterval)
	assert.Equal(t, 90*24*time.Hour, env.Retention())
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("GANTT_HTTP_PORT", "8080")
	t.Setenv("GANTT_STORAGE_TYPE", "neo4j")
	t.Setenv("GANTT_NEO4J_URI", "neo4j://db:7687")
	t.Setenv("GANTT_LOG_RETENTION_DAYS", "7")
	t.Setenv("GANTT_LOG_CLEANUP_INTERVAL", "1h")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", env.HTTPPort)
	assert.Equal(t, "neo4j", env.StorageEnv.Type)
	assert.Equal(t, "neo4j://db:7687", env.Neo4jURI)
	assert.Equal(t, 7, env.RetentionDays)
	assert.Equal(t, time.Hour, env.CleanupInterval)
}

func TestLoadEnv_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown storage", key: "GANTT_STORAGE_TYPE", value: "ftp"},
		{name: "zero retention", key: "GANTT_LOG_RETENTION_DAYS", value: "0"},
		{name: "negative retention", key: "GANTT_LOG_RETENTION_DAYS", value: "-3"},
		{name: "zero cleanup interval", key: "GANTT_LOG_CLEANUP_INTERVAL", value: "0s"},
		{name: "negative cleanup interval", key: "GANTT_LOG_CLEANUP_INTERVAL", value: "-1h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadEnv()
			assert.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, (&BaseEnv{LogLevel: "warn"}).SlogLevel())
	assert.Equal(t, slog.LevelDebug, (&BaseEnv{LogLevel: "bogus"}).SlogLevel())
	var nilEnv *BaseEnv
	assert.Equal(t, slog.LevelDebug, nilEnv.SlogLevel())
}
