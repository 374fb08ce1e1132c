package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"discord-invite-tracker/internal/models"
)

// LookupAffiliate returns the affiliate owning code, or nil if the code is
// not registered.
func (d *Database) LookupAffiliate(ctx context.Context, guildID, code string) (*models.Affiliate, error) {
	var userID string
	err := d.queryRow(ctx,
		func(ps *PreparedStatements) *sql.Stmt { return ps.lookupAffiliate },
		lookupAffiliateSQL, guildID, code,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.Affiliate{GuildID: guildID, Code: code, UserID: userID}, nil
}

func (d *Database) HasReferral(ctx context.Context, guildID, memberID string) (bool, error) {
	var one int
	err := d.queryRow(ctx,
		func(ps *PreparedStatements) *sql.Stmt { return ps.hasReferral },
		hasReferralSQL, guildID, memberID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordReferral stores a referral. A member is referred at most once; later
// calls for the same member are ignored.
func (d *Database) RecordReferral(ctx context.Context, ref models.AffiliateReferral) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO affiliate_referrals (guild_id, member_id, code, referred_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, ref.GuildID, ref.MemberID, ref.Code, unixOrZero(ref.At))
	return err
}

func (d *Database) RegisterAffiliate(ctx context.Context, a models.Affiliate) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO affiliates (guild_id, code, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, code) DO UPDATE SET user_id = EXCLUDED.user_id
	`, a.GuildID, a.Code, a.UserID, time.Now().Unix())
	return err
}

// RemoveAffiliate unregisters a code and reports whether it existed.
func (d *Database) RemoveAffiliate(ctx context.Context, guildID, code string) (bool, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM affiliates WHERE guild_id = $1 AND code = $2", guildID, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AffiliateReferralCounts returns, for every code userID owns, how many
// members it referred.
func (d *Database) AffiliateReferralCounts(ctx context.Context, guildID, userID string) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT a.code, COUNT(r.member_id)
		FROM affiliates a
		LEFT JOIN affiliate_referrals r ON r.guild_id = a.guild_id AND r.code = a.code
		WHERE a.guild_id = $1 AND a.user_id = $2
		GROUP BY a.code
	`, guildID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		counts[code] = n
	}
	return counts, rows.Err()
}
