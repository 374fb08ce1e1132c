package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"discord-invite-tracker/internal/models"
)

// Ledger persistence

func (d *Database) LoadLedger(ctx context.Context) ([]models.InviterStats, []models.MemberJoinRecord, error) {
	stats, err := d.loadInviterStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	members, err := d.loadMemberJoins(ctx)
	if err != nil {
		return nil, nil, err
	}
	return stats, members, nil
}

func (d *Database) loadInviterStats(ctx context.Context) ([]models.InviterStats, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT guild_id, user_id, regular, fake, bonus, leaves
		FROM invite_stats
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load invite stats: %w", err)
	}
	defer rows.Close()

	var out []models.InviterStats
	for rows.Next() {
		var s models.InviterStats
		if err := rows.Scan(&s.GuildID, &s.UserID, &s.Regular, &s.Fake, &s.Bonus, &s.Leaves); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *Database) loadMemberJoins(ctx context.Context) ([]models.MemberJoinRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT guild_id, member_id, inviter_id, code, joined_at, is_alt, left_at, rejoins
		FROM member_joins
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load member joins: %w", err)
	}
	defer rows.Close()

	var out []models.MemberJoinRecord
	for rows.Next() {
		var (
			r        models.MemberJoinRecord
			joinedAt int64
			leftAt   sql.NullInt64
		)
		if err := rows.Scan(&r.GuildID, &r.MemberID, &r.InviterID, &r.Code, &joinedAt, &r.IsAlt, &leftAt, &r.Rejoins); err != nil {
			return nil, err
		}
		r.JoinedAt = fromUnix(joinedAt)
		if leftAt.Valid {
			t := fromUnix(leftAt.Int64)
			r.LeftAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *Database) SaveInviterStats(ctx context.Context, s models.InviterStats) error {
	return d.exec(ctx,
		func(ps *PreparedStatements) *sql.Stmt { return ps.upsertInviterStats },
		upsertInviterStatsSQL,
		s.GuildID, s.UserID, s.Regular, s.Fake, s.Bonus, s.Leaves, time.Now().Unix(),
	)
}

func (d *Database) DeleteInviterStats(ctx context.Context, guildID, userID string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM invite_stats WHERE guild_id = $1 AND user_id = $2", guildID, userID)
	return err
}

func (d *Database) SaveMemberRecord(ctx context.Context, r models.MemberJoinRecord) error {
	var leftAt sql.NullInt64
	if r.LeftAt != nil {
		leftAt = sql.NullInt64{Int64: r.LeftAt.Unix(), Valid: true}
	}
	return d.exec(ctx,
		func(ps *PreparedStatements) *sql.Stmt { return ps.upsertMemberJoin },
		upsertMemberJoinSQL,
		r.GuildID, r.MemberID, r.InviterID, r.Code, unixOrZero(r.JoinedAt), r.IsAlt, leftAt, r.Rejoins,
	)
}
