package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pineapple-index/subindex/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 6500*time.Millisecond, cfg.RateLimit.MinDelay)
	assert.Equal(t, 8, cfg.RateLimit.MaxCallsPerMinute)
	assert.Equal(t, "https://www.reddit.com", cfg.Reddit.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Reddit.DefaultRetryAfter)
	assert.Equal(t, "metadata_refresh_queue", cfg.Redis.Queue)
	assert.Equal(t, 24*time.Hour, cfg.Refresh.Staleness)
	assert.Equal(t, 168*time.Hour, cfg.Refresh.AbsentRecheck)
	assert.Equal(t, 10*time.Second, cfg.Refresh.PopTimeout)
	assert.Contains(t, cfg.Scan.IgnoreSubreddits, "sneakpeekbot")
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
redis:
  addr: "localhost:6379"
scan:
  sources:
    - some_source
  cycle_sleep: 5m
rate_limit:
  min_delay: 7s
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"some_source"}, cfg.Scan.Sources)
	assert.Equal(t, 5*time.Minute, cfg.Scan.CycleSleep)
	assert.Equal(t, 7*time.Second, cfg.RateLimit.MinDelay)
	// Untouched keys keep their defaults.
	assert.Equal(t, 8, cfg.RateLimit.MaxCallsPerMinute)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rate_limit:
  min_delay: 0s
`), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_delay")
}

func TestValidate(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.Port = 8080
	cfg.Refresh.Concurrency = 0
	assert.Error(t, cfg.Validate())
}
