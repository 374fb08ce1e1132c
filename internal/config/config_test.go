package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAMLDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
token: abc
invites:
  announce_channel_id: "100"
  welcome_channel_ids: ["200", "201"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, []string{"200", "201"}, cfg.Invites.WelcomeChannelIDs)
	assert.Equal(t, time.Second, cfg.Invites.WelcomeDeleteAfter)
	assert.Equal(t, 1.0, cfg.Invites.LeaveWeight)
	assert.Equal(t, 10*time.Second, cfg.Invites.LockTTL)
	assert.Equal(t, uint64(3), cfg.Invites.ResolveRetries)
	assert.Equal(t, 10*time.Second, cfg.Invites.ConsumedWindow)
	assert.Equal(t, time.Hour, cfg.Invites.ProfileCacheTTL)
	assert.Equal(t, 15, cfg.Monitoring.JoinThreshold)
	assert.Equal(t, 8, cfg.Monitoring.AltThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Monitoring.SweepInterval)
	assert.Equal(t, "localhost:6060", cfg.MetricsAddr)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	path := writeFile(t, "config.yml", `
token: abc
metrics_addr: ":9100"
redis:
  addr: redis:6379
invites:
  announce_channel_id: "100"
  leave_weight: 0.5
  lock_ttl: 30s
  resolve_interval: 250ms
  consumed_window: 5s
monitoring:
  join_threshold: 40
  alt_window: 2h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 0.5, cfg.Invites.LeaveWeight)
	assert.Equal(t, 30*time.Second, cfg.Invites.LockTTL)

	opts := cfg.ResolveOptions()
	assert.Equal(t, 250*time.Millisecond, opts.Interval)
	assert.Equal(t, uint64(3), opts.Retries)
	assert.Equal(t, 5*time.Second, opts.ConsumedWindow)

	mon := cfg.MonitorConfig()
	assert.Equal(t, 40, mon.JoinThreshold)
	assert.Equal(t, 8, mon.AltThreshold)
	assert.Equal(t, 2*time.Hour, mon.AltWindow)
	assert.Equal(t, 30*time.Second, cfg.HandlerConfig().LockTTL)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "token": "abc",
  "postgres": {"host": "db", "port": 5433, "user": "bot", "database": "invites"},
  "invites": {"welcome_channel_ids": ["200"]}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "invites", cfg.Postgres.Database)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "from-env")
	t.Setenv("INVITES_WELCOME_CHANNELS", "1,2,3")
	path := writeFile(t, "config.yaml", "token: from-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Token)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.Invites.WelcomeChannelIDs)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.toml.txt", "token = 'x'"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.yaml", "invites:\n  announce_channel_id: \"1\"\n"))
	assert.ErrorContains(t, err, "token")

	_, err = Load(writeFile(t, "config.yaml", "token: abc\n"))
	assert.ErrorContains(t, err, "announce_channel_id")

	_, err = Load(writeFile(t, "config.yaml", "token: abc\ninvites:\n  announce_channel_id: \"1\"\n  leave_weight: -1\n"))
	assert.ErrorContains(t, err, "leave_weight")
}
