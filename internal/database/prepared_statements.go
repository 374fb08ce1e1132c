package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PreparedStatements holds the statements run on every join and leave.
type PreparedStatements struct {
	mu sync.RWMutex

	upsertInviterStats *sql.Stmt
	upsertMemberJoin   *sql.Stmt
	lookupAffiliate    *sql.Stmt
	hasReferral        *sql.Stmt
}

const (
	upsertInviterStatsSQL = `
		INSERT INTO invite_stats (guild_id, user_id, regular, fake, bonus, leaves, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			regular = EXCLUDED.regular,
			fake = EXCLUDED.fake,
			bonus = EXCLUDED.bonus,
			leaves = EXCLUDED.leaves,
			updated_at = EXCLUDED.updated_at
	`
	upsertMemberJoinSQL = `
		INSERT INTO member_joins (guild_id, member_id, inviter_id, code, joined_at, is_alt, left_at, rejoins)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (guild_id, member_id) DO UPDATE SET
			inviter_id = EXCLUDED.inviter_id,
			code = EXCLUDED.code,
			joined_at = EXCLUDED.joined_at,
			is_alt = EXCLUDED.is_alt,
			left_at = EXCLUDED.left_at,
			rejoins = EXCLUDED.rejoins
	`
	lookupAffiliateSQL = `SELECT user_id FROM affiliates WHERE guild_id = $1 AND code = $2`
	hasReferralSQL     = `SELECT 1 FROM affiliate_referrals WHERE guild_id = $1 AND member_id = $2`
)

// InitPreparedStatements pre-compiles the hot-path statements.
func (d *Database) InitPreparedStatements(ctx context.Context) error {
	ps := &PreparedStatements{}

	var err error
	prepare := func(name, query string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var stmt *sql.Stmt
		stmt, err = d.db.PrepareContext(ctx, query)
		if err != nil {
			err = fmt.Errorf("failed to prepare %s: %w", name, err)
		}
		return stmt
	}

	ps.upsertInviterStats = prepare("upsertInviterStats", upsertInviterStatsSQL)
	ps.upsertMemberJoin = prepare("upsertMemberJoin", upsertMemberJoinSQL)
	ps.lookupAffiliate = prepare("lookupAffiliate", lookupAffiliateSQL)
	ps.hasReferral = prepare("hasReferral", hasReferralSQL)
	if err != nil {
		ps.closeAll()
		return err
	}

	if old := d.stmts.Swap(ps); old != nil {
		old.closeAll()
	}
	return nil
}

// StartPreparedStatementRefresher re-prepares statements after the database
// comes back from a restart.
func (d *Database) StartPreparedStatementRefresher(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.db.PingContext(ctx); err != nil {
					d.logger.Warn("Database ping failed, re-preparing statements", zap.Error(err))
					if err := d.InitPreparedStatements(ctx); err != nil {
						d.logger.Warn("Re-prepare failed", zap.Error(err))
					}
				}
			}
		}
	}()
}

func (d *Database) ClosePreparedStatements() {
	if ps := d.stmts.Load(); ps != nil {
		ps.closeAll()
	}
}

func (ps *PreparedStatements) closeAll() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, stmt := range []*sql.Stmt{
		ps.upsertInviterStats,
		ps.upsertMemberJoin,
		ps.lookupAffiliate,
		ps.hasReferral,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// stmt returns the prepared statement picked by pick, or nil when statements
// are not available.
func (d *Database) stmt(pick func(*PreparedStatements) *sql.Stmt) *sql.Stmt {
	ps := d.stmts.Load()
	if ps == nil {
		return nil
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return pick(ps)
}

// exec runs a prepared statement, falling back to a plain query when the
// statement is missing or was invalidated by a reconnect.
func (d *Database) exec(ctx context.Context, pick func(*PreparedStatements) *sql.Stmt, query string, args ...interface{}) error {
	if stmt := d.stmt(pick); stmt != nil {
		_, err := stmt.ExecContext(ctx, args...)
		if !isBadPreparedStatement(err) {
			return err
		}
	}
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

func (d *Database) queryRow(ctx context.Context, pick func(*PreparedStatements) *sql.Stmt, query string, args ...interface{}) *sql.Row {
	if stmt := d.stmt(pick); stmt != nil {
		return stmt.QueryRowContext(ctx, args...)
	}
	return d.db.QueryRowContext(ctx, query, args...)
}

// isBadPreparedStatement checks if error indicates invalid prepared statement
func isBadPreparedStatement(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "cached plan") ||
		strings.Contains(errStr, "closed the connection") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "bad connection") ||
		strings.Contains(errStr, "statement is closed")
}
