package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Database struct {
	db     *sql.DB
	stmts  atomic.Pointer[PreparedStatements]
	logger *zap.Logger
}

type PostgresConfig struct {
	Host     string `json:"host" yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     int    `json:"port" yaml:"port" env:"POSTGRES_PORT"`
	User     string `json:"user" yaml:"user" env:"POSTGRES_USER"`
	Password string `json:"password" yaml:"password" env:"POSTGRES_PASSWORD"`
	Database string `json:"database" yaml:"database" env:"POSTGRES_DB"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

const schema = `
-- Per-inviter counters
CREATE TABLE IF NOT EXISTS invite_stats (
    guild_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    regular INTEGER NOT NULL DEFAULT 0,
    fake INTEGER NOT NULL DEFAULT 0,
    bonus INTEGER NOT NULL DEFAULT 0,
    leaves INTEGER NOT NULL DEFAULT 0,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (guild_id, user_id)
);

-- One row per member; rejoins overwrite it
CREATE TABLE IF NOT EXISTS member_joins (
    guild_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    inviter_id TEXT NOT NULL DEFAULT '', -- empty for vanity or unresolved joins
    code TEXT NOT NULL DEFAULT '',
    joined_at BIGINT NOT NULL,
    is_alt BOOLEAN NOT NULL DEFAULT FALSE,
    left_at BIGINT, -- NULL while the member is present
    rejoins INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (guild_id, member_id)
);

-- Invite codes owned by affiliates
CREATE TABLE IF NOT EXISTS affiliates (
    guild_id TEXT NOT NULL,
    code TEXT NOT NULL,
    user_id TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    PRIMARY KEY (guild_id, code)
);

-- Members brought in through an affiliate code, at most once per member
CREATE TABLE IF NOT EXISTS affiliate_referrals (
    guild_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    code TEXT NOT NULL,
    referred_at BIGINT NOT NULL,
    PRIMARY KEY (guild_id, member_id)
);

CREATE INDEX IF NOT EXISTS idx_member_joins_inviter ON member_joins(guild_id, inviter_id);
CREATE INDEX IF NOT EXISTS idx_affiliates_user ON affiliates(guild_id, user_id);
CREATE INDEX IF NOT EXISTS idx_affiliate_referrals_code ON affiliate_referrals(guild_id, code);
`

func connString(cfg PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Database, sslMode)
}

func NewDatabase(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*Database, error) {
	db, err := sql.Open("postgres", connString(cfg))
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(1 * time.Hour)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	d := &Database{
		db:     db,
		logger: logger.Named("database"),
	}

	if err := d.InitPreparedStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init prepared statements: %w", err)
	}

	return d, nil
}

func (d *Database) Close() error {
	d.ClosePreparedStatements()
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
