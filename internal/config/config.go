package config

import (
	"errors"
	"fmt"
	"time"

	"discord-invite-tracker/internal/database"
	"discord-invite-tracker/internal/invites"
	"discord-invite-tracker/internal/monitoring"
	"discord-invite-tracker/internal/redis"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is read when no path is given on the command line.
const DefaultPath = "config.yaml"

type InvitesConfig struct {
	AnnounceChannelID  string        `json:"announce_channel_id" yaml:"announce_channel_id" env:"INVITES_ANNOUNCE_CHANNEL"`
	WelcomeChannelIDs  []string      `json:"welcome_channel_ids" yaml:"welcome_channel_ids" env:"INVITES_WELCOME_CHANNELS" env-separator:","`
	WelcomeDeleteAfter time.Duration `json:"welcome_delete_after" yaml:"welcome_delete_after" env-default:"1s"`
	// LeaveWeight scales each leave before it is deducted. Zero falls back to 1.
	LeaveWeight     float64       `json:"leave_weight" yaml:"leave_weight" env-default:"1.0"`
	LockTTL         time.Duration `json:"lock_ttl" yaml:"lock_ttl" env-default:"10s"`
	ResolveRetries  uint64        `json:"resolve_retries" yaml:"resolve_retries" env-default:"3"`
	ResolveInterval time.Duration `json:"resolve_interval" yaml:"resolve_interval" env-default:"1s"`
	// ConsumedWindow bounds how long after its deletion a single-use invite
	// can still be credited to a join.
	ConsumedWindow  time.Duration `json:"consumed_window" yaml:"consumed_window" env-default:"10s"`
	ProfileCacheTTL time.Duration `json:"profile_cache_ttl" yaml:"profile_cache_ttl" env-default:"1h"`
}

type MonitoringConfig struct {
	JoinThreshold int           `json:"join_threshold" yaml:"join_threshold" env-default:"15"`
	AltThreshold  int           `json:"alt_threshold" yaml:"alt_threshold" env-default:"8"`
	JoinWindow    time.Duration `json:"join_window" yaml:"join_window" env-default:"1m"`
	AltWindow     time.Duration `json:"alt_window" yaml:"alt_window" env-default:"1h"`
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval" env-default:"5m"`
}

type Config struct {
	Token       string                  `json:"token" yaml:"token" env:"DISCORD_TOKEN"`
	Redis       redis.Config            `json:"redis" yaml:"redis"`
	Postgres    database.PostgresConfig `json:"postgres" yaml:"postgres"`
	Invites     InvitesConfig           `json:"invites" yaml:"invites"`
	Monitoring  MonitoringConfig        `json:"monitoring" yaml:"monitoring"`
	MetricsAddr string                  `json:"metrics_addr" yaml:"metrics_addr" env:"METRICS_ADDR" env-default:"localhost:6060"`
}

// Load reads a YAML or JSON file, picked by extension, then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a config from environment variables alone.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("token is required")
	}
	if c.Invites.LeaveWeight < 0 {
		return fmt.Errorf("leave_weight must not be negative, got %v", c.Invites.LeaveWeight)
	}
	if c.Invites.AnnounceChannelID == "" && len(c.Invites.WelcomeChannelIDs) == 0 {
		return errors.New("at least one of announce_channel_id or welcome_channel_ids must be set")
	}
	return nil
}

func (c *Config) ResolveOptions() invites.ResolveOptions {
	return invites.ResolveOptions{
		Retries:        c.Invites.ResolveRetries,
		Interval:       c.Invites.ResolveInterval,
		ConsumedWindow: c.Invites.ConsumedWindow,
	}
}

func (c *Config) HandlerConfig() invites.HandlerConfig {
	return invites.HandlerConfig{LockTTL: c.Invites.LockTTL}
}

func (c *Config) MonitorConfig() monitoring.Config {
	return monitoring.Config{
		JoinThreshold: c.Monitoring.JoinThreshold,
		AltThreshold:  c.Monitoring.AltThreshold,
		JoinWindow:    c.Monitoring.JoinWindow,
		AltWindow:     c.Monitoring.AltWindow,
	}
}
