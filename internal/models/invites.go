package models

import (
	"math"
	"time"
)

// InviteRecord is one outstanding invite link in a guild.
type InviteRecord struct {
	GuildID    string    `json:"guild_id"`
	Code       string    `json:"code"`
	InviterID  string    `json:"inviter_id"`
	InviterBot bool      `json:"inviter_bot"`
	Uses       int       `json:"uses"`
	MaxUses    int       `json:"max_uses"` // 0 means unlimited
	CreatedAt  time.Time `json:"created_at"`
}

// InviterStats is the stored aggregate for one inviter in one guild.
type InviterStats struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
	Regular int    `json:"regular"`
	Fake    int    `json:"fake"`
	Bonus   int    `json:"bonus"`
	Leaves  int    `json:"leaves"`
}

// StatsView is InviterStats with the derived leave deduction and total.
type StatsView struct {
	Regular         int `json:"regular"`
	Fake            int `json:"fake"`
	Bonus           int `json:"bonus"`
	Leaves          int `json:"leaves"`
	LeavesDeduction int `json:"leaves_deduction"`
	Total           int `json:"total"`
}

// View computes the displayed totals. Fake joins are informational and
// contribute nothing to the total.
func (s InviterStats) View(leaveWeight float64) StatsView {
	deduction := int(math.Round(float64(s.Leaves) * leaveWeight))
	return StatsView{
		Regular:         s.Regular,
		Fake:            s.Fake,
		Bonus:           s.Bonus,
		Leaves:          s.Leaves,
		LeavesDeduction: deduction,
		Total:           s.Regular + s.Bonus - deduction,
	}
}

// MemberJoinRecord is the latest membership episode of an invitee.
// InviterID is empty for vanity or otherwise unattributed joins.
type MemberJoinRecord struct {
	GuildID   string     `json:"guild_id"`
	MemberID  string     `json:"member_id"`
	InviterID string     `json:"inviter_id"`
	Code      string     `json:"code"`
	JoinedAt  time.Time  `json:"joined_at"`
	IsAlt     bool       `json:"is_alt"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
	Rejoins   int        `json:"rejoins"`
}

// Active reports whether the member is currently in the guild.
func (r *MemberJoinRecord) Active() bool {
	return r.LeftAt == nil
}

// Affiliate maps a registered invite code to the affiliate who owns it.
type Affiliate struct {
	GuildID string `json:"guild_id"`
	Code    string `json:"code"`
	UserID  string `json:"user_id"`
}

type AffiliateReferral struct {
	GuildID  string    `json:"guild_id"`
	Code     string    `json:"code"`
	MemberID string    `json:"member_id"`
	At       time.Time `json:"at"`
}
