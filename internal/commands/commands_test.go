package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"discord-invite-tracker/internal/invites"
	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/scoring"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeContext struct {
	admin      bool
	author     string
	subcommand string
	strings    map[string]string
	ints       map[string]int64
	users      map[string]string

	replies   []string
	ephemeral []string
	embeds    []*discordgo.MessageEmbed
}

func (f *fakeContext) Context() context.Context { return context.Background() }
func (f *fakeContext) GetSession() *discordgo.Session { return nil }
func (f *fakeContext) GetGuildID() string { return "g" }
func (f *fakeContext) GetChannelID() string { return "c" }
func (f *fakeContext) GetAuthor() *discordgo.User { return &discordgo.User{ID: f.author, Username: f.author} }
func (f *fakeContext) IsAdmin() bool { return f.admin }
func (f *fakeContext) Subcommand() string { return f.subcommand }
func (f *fakeContext) StringOption(name string) string { return f.strings[name] }
func (f *fakeContext) UserOption(name string) string { return f.users[name] }

func (f *fakeContext) IntOption(name string) (int64, bool) {
	v, ok := f.ints[name]
	return v, ok
}

func (f *fakeContext) Reply(content string) error {
	f.replies = append(f.replies, content)
	return nil
}

func (f *fakeContext) ReplyEphemeral(content string) error {
	f.ephemeral = append(f.ephemeral, content)
	return nil
}

func (f *fakeContext) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	f.embeds = append(f.embeds, embed)
	return nil
}

func adminCtx(sub string, user string, amount int64) *fakeContext {
	return &fakeContext{
		admin:      true,
		author:     "admin",
		subcommand: sub,
		users:      map[string]string{"user": user},
		ints:       map[string]int64{"amount": amount},
	}
}

func newLedger(t *testing.T) *invites.Ledger {
	t.Helper()
	l := invites.NewLedger(nil, nil, 1.0, zap.NewNop())
	ctx := context.Background()
	l.RecordMemberJoin(ctx, "g", "m1", "alice", "abc", false)
	l.RecordMemberJoin(ctx, "g", "m2", "alice", "abc", true)
	l.RecordMemberJoin(ctx, "g", "m3", "bob", "xyz", false)
	return l
}

func TestInvitesCmd_RequiresAdmin(t *testing.T) {
	ctx := adminCtx("reset", "alice", 0)
	ctx.admin = false
	InvitesCmd(ctx, InviteDeps{Ledger: newLedger(t)})

	require.Len(t, ctx.ephemeral, 1)
	assert.Contains(t, ctx.ephemeral[0], "Administrator")
	assert.Empty(t, ctx.replies)
}

func TestInvitesCmd_AddBonusAndRemove(t *testing.T) {
	ledger := newLedger(t)

	ctx := adminCtx("add-bonus", "alice", 3)
	InvitesCmd(ctx, InviteDeps{Ledger: ledger})
	require.Len(t, ctx.replies, 1)
	assert.Contains(t, ctx.replies[0], "now have **4** invites")

	ctx = adminCtx("remove", "alice", 5)
	InvitesCmd(ctx, InviteDeps{Ledger: ledger})
	require.Len(t, ctx.replies, 1)
	v := ledger.GetInviterStats("g", "alice")
	assert.Equal(t, 0, v.Bonus)
	assert.Equal(t, 3, v.Fake)
	assert.Equal(t, 1, v.Total)
}

func TestInvitesCmd_InvalidAmount(t *testing.T) {
	ctx := adminCtx("add-bonus", "alice", 0)
	InvitesCmd(ctx, InviteDeps{Ledger: newLedger(t)})
	require.Len(t, ctx.ephemeral, 1)
	assert.Contains(t, ctx.ephemeral[0], "at least 1")
}

func TestInvitesCmd_Reset(t *testing.T) {
	ledger := newLedger(t)

	ctx := adminCtx("reset", "alice", 0)
	InvitesCmd(ctx, InviteDeps{Ledger: ledger})
	require.Len(t, ctx.replies, 1)
	assert.Zero(t, ledger.GetInviterStats("g", "alice").Regular)

	ctx = adminCtx("reset", "alice", 0)
	InvitesCmd(ctx, InviteDeps{Ledger: ledger})
	assert.Len(t, ctx.ephemeral, 1)
}

func TestInvitesCmd_Leaderboard(t *testing.T) {
	ctx := adminCtx("leaderboard", "", 0)
	InvitesCmd(ctx, InviteDeps{Ledger: newLedger(t)})

	require.Len(t, ctx.embeds, 1)
	desc := ctx.embeds[0].Description
	assert.Contains(t, desc, "**1.** <@alice>")
	assert.Contains(t, desc, "**2.** <@bob>")
}

type fixedRanker struct {
	rank int
	err  error
}

func (r fixedRanker) Rank(context.Context, string, string) (int, error) {
	return r.rank, r.err
}

type fakeInspector struct {
	b   *scoring.Breakdown
	err error
}

func (f fakeInspector) InspectMember(context.Context, string, string) (*scoring.Breakdown, error) {
	return f.b, f.err
}

func TestInvitesCmd_Details(t *testing.T) {
	ctx := adminCtx("details", "m2", 0)
	InvitesCmd(ctx, InviteDeps{
		Ledger: newLedger(t),
		Ranker: fixedRanker{rank: 2},
		Inspector: fakeInspector{b: &scoring.Breakdown{
			Signals: []scoring.Signal{{Name: "no avatar", Weight: -3}},
			Total:   -3,
			AgeDays: 3,
		}},
	})

	require.Len(t, ctx.embeds, 1)
	embed := ctx.embeds[0]
	assert.Equal(t, "Rank #2", embed.Footer.Text)

	fields := make(map[string]string)
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	assert.Contains(t, fields["Joined"], "<@alice>")
	assert.Contains(t, fields["Joined"], "Flagged as alt")
	assert.Contains(t, fields["Alt Score"], "**-3** (alt)")
	assert.Contains(t, fields["Alt Score"], "`-3` no avatar")
}

func TestInvitesCmd_DetailsInspectorFailure(t *testing.T) {
	ctx := adminCtx("details", "alice", 0)
	InvitesCmd(ctx, InviteDeps{
		Ledger:    newLedger(t),
		Ranker:    fixedRanker{err: errors.New("redis down")},
		Inspector: fakeInspector{err: errors.New("unknown member")},
	})

	require.Len(t, ctx.embeds, 1)
	embed := ctx.embeds[0]
	assert.Nil(t, embed.Footer)
	var invited, score string
	for _, f := range embed.Fields {
		switch f.Name {
		case "Invited Members":
			invited = f.Value
		case "Alt Score":
			score = f.Value
		}
	}
	assert.Contains(t, invited, "<@m1>")
	assert.Contains(t, invited, "<@m2> (alt)")
	assert.Equal(t, "Member not found.", score)
}

func TestMyInvitesCmd(t *testing.T) {
	ctx := &fakeContext{author: "alice"}
	MyInvitesCmd(ctx, InviteDeps{Ledger: newLedger(t)})

	require.Len(t, ctx.embeds, 1)
	assert.Contains(t, ctx.embeds[0].Description, "<@alice> has **1** invites")
}

type memAffiliates struct {
	codes  map[string]string
	counts map[string]int
}

func (m *memAffiliates) RegisterAffiliate(_ context.Context, a models.Affiliate) error {
	m.codes[a.Code] = a.UserID
	return nil
}

func (m *memAffiliates) RemoveAffiliate(_ context.Context, _ string, code string) (bool, error) {
	_, ok := m.codes[code]
	delete(m.codes, code)
	return ok, nil
}

func (m *memAffiliates) AffiliateReferralCounts(_ context.Context, _ string, userID string) (map[string]int, error) {
	out := make(map[string]int)
	for code, owner := range m.codes {
		if owner == userID {
			out[code] = m.counts[code]
		}
	}
	return out, nil
}

func TestAffiliateCmd(t *testing.T) {
	store := &memAffiliates{codes: map[string]string{}, counts: map[string]int{"abc": 4, "def": 1}}

	ctx := adminCtx("register", "partner", 0)
	ctx.strings = map[string]string{"code": "https://discord.gg/abc"}
	AffiliateCmd(ctx, store)
	assert.Equal(t, "partner", store.codes["abc"])

	ctx = adminCtx("register", "partner", 0)
	ctx.strings = map[string]string{"code": "def"}
	AffiliateCmd(ctx, store)

	ctx = adminCtx("referrals", "partner", 0)
	AffiliateCmd(ctx, store)
	require.Len(t, ctx.embeds, 1)
	assert.Contains(t, ctx.embeds[0].Description, "Total referrals: **5**")

	ctx = adminCtx("remove", "", 0)
	ctx.strings = map[string]string{"code": "zzz"}
	AffiliateCmd(ctx, store)
	assert.Len(t, ctx.ephemeral, 1)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "abc", normalizeCode(" discord.gg/abc "))
	assert.Equal(t, "abc", normalizeCode("https://discord.com/invite/abc"))
	assert.Equal(t, "abc", normalizeCode("abc"))
}

func TestStatsCmd(t *testing.T) {
	ctx := &fakeContext{author: "someone"}
	StatsCmd(ctx, RuntimeStats{
		StartTime:        time.Now().Add(-time.Hour),
		Guilds:           2,
		PendingWrites:    1,
		JoinsLastMinute:  4,
		AltsLastHour:     3,
		ProfileL1HitRate: 0.5,
		ProfileL2HitRate: 0.25,
	})

	require.Len(t, ctx.embeds, 1)
	fields := ctx.embeds[0].Fields
	require.Len(t, fields, 4)
	assert.Contains(t, fields[0].Value, "**Guilds:** 2")
	assert.Contains(t, fields[1].Value, "**Pending Ledger Writes:** 1")
	assert.Contains(t, fields[2].Value, "**Last Minute:** 4")
	assert.Contains(t, fields[2].Value, "**Alts Last Hour:** 3")
	assert.Contains(t, fields[2].Value, "50% memory, 25% Redis")
}
