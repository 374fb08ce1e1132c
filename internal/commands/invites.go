package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/invites"
	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/scoring"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

const leaderboardSize = 10

var adminPermission int64 = discordgo.PermissionAdministrator

var Invites = &discordgo.ApplicationCommand{
	Name:                     "invites",
	Description:              "Manage the invite ledger",
	DefaultMemberPermissions: &adminPermission,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "add-bonus",
			Description: "Grant bonus invites to a user",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to credit"),
				amountOption(),
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "remove",
			Description: "Remove invites from a user",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to debit"),
				amountOption(),
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "reset",
			Description: "Reset a user's invite counters",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to reset"),
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "details",
			Description: "Show a user's invites, inviter and alt score",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to inspect"),
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "leaderboard",
			Description: "Show the top inviters",
		},
	},
}

var MyInvites = &discordgo.ApplicationCommand{
	Name:        "myinvites",
	Description: "Check your invite count",
}

func userOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: desc,
		Required:    true,
	}
}

func amountOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "amount",
		Description: "Number of invites",
		Required:    true,
		MinValue:    floatPtr(1),
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

// InviteLedger is the part of the ledger the commands read and adjust.
type InviteLedger interface {
	AddBonusInvites(ctx context.Context, guildID, inviterID string, n int) (models.StatsView, error)
	RemoveInvites(ctx context.Context, guildID, inviterID string, n int) (models.StatsView, error)
	ResetUser(ctx context.Context, guildID, inviterID string) bool
	GetInviterStats(guildID, inviterID string) models.StatsView
	MemberRecord(guildID, memberID string) (models.MemberJoinRecord, bool)
	InvitedBy(guildID, inviterID string) []models.MemberJoinRecord
	Leaderboard(guildID string, limit int) []invites.RankedStats
}

// Ranker returns a user's 1-based leaderboard position, 0 when unranked.
type Ranker interface {
	Rank(ctx context.Context, guildID, userID string) (int, error)
}

// MemberInspector scores a current guild member on demand.
type MemberInspector interface {
	InspectMember(ctx context.Context, guildID, userID string) (*scoring.Breakdown, error)
}

type InviteDeps struct {
	Ledger    InviteLedger
	Ranker    Ranker
	Inspector MemberInspector
}

func InvitesCmd(ctx framework.Context, deps InviteDeps) {
	if !ctx.IsAdmin() {
		ctx.ReplyEphemeral(utils.EmojiCross + " You need the Administrator permission to use this command.")
		return
	}

	guildID := ctx.GetGuildID()
	userID := ctx.UserOption("user")
	amount, _ := ctx.IntOption("amount")

	switch ctx.Subcommand() {
	case "add-bonus":
		v, err := deps.Ledger.AddBonusInvites(ctx.Context(), guildID, userID, int(amount))
		if err != nil {
			ctx.ReplyEphemeral(adjustError(err))
			return
		}
		ctx.Reply(fmt.Sprintf("%s Added **%d** bonus invites to <@%s>. They now have **%d** invites.",
			utils.EmojiTick, amount, userID, v.Total))

	case "remove":
		v, err := deps.Ledger.RemoveInvites(ctx.Context(), guildID, userID, int(amount))
		if err != nil {
			ctx.ReplyEphemeral(adjustError(err))
			return
		}
		ctx.Reply(fmt.Sprintf("%s Removed **%d** invites from <@%s>. They now have **%d** invites.",
			utils.EmojiTick, amount, userID, v.Total))

	case "reset":
		if !deps.Ledger.ResetUser(ctx.Context(), guildID, userID) {
			ctx.ReplyEphemeral(fmt.Sprintf("%s <@%s> has no invites to reset.", utils.EmojiCross, userID))
			return
		}
		ctx.Reply(fmt.Sprintf("%s Reset invites for <@%s>.", utils.EmojiTick, userID))

	case "details":
		ctx.ReplyEmbed(detailsEmbed(ctx.Context(), guildID, userID, deps))

	case "leaderboard":
		rows := deps.Ledger.Leaderboard(guildID, leaderboardSize)
		out := make([]utils.LeaderboardRow, len(rows))
		for i, r := range rows {
			out[i] = utils.LeaderboardRow{UserID: r.UserID, Total: r.Total, Regular: r.Regular, Fake: r.Fake, Leaves: r.Leaves}
		}
		ctx.ReplyEmbed(utils.LeaderboardEmbed(out))

	default:
		ctx.ReplyEphemeral(utils.EmojiCross + " Unknown subcommand.")
	}
}

func adjustError(err error) string {
	if errors.Is(err, invites.ErrInvalidAmount) {
		return utils.EmojiCross + " The amount must be at least 1."
	}
	return fmt.Sprintf("%s Failed to update invites: %v", utils.EmojiCross, err)
}

func detailsEmbed(ctx context.Context, guildID, userID string, deps InviteDeps) *discordgo.MessageEmbed {
	stats := deps.Ledger.GetInviterStats(guildID, userID)
	embed := utils.InviteStatsEmbed(userID, stats, rankOf(ctx, deps.Ranker, guildID, userID))

	joined := "No join record."
	if rec, ok := deps.Ledger.MemberRecord(guildID, userID); ok {
		inviter := "vanity or unknown invite"
		if rec.InviterID != "" {
			inviter = fmt.Sprintf("<@%s> (`%s`)", rec.InviterID, rec.Code)
		}
		joined = fmt.Sprintf("Invited by %s <t:%d:R>", inviter, rec.JoinedAt.Unix())
		if rec.IsAlt {
			joined += "\n" + utils.EmojiAlt + " Flagged as alt"
		}
		if rec.Rejoins > 0 {
			joined += fmt.Sprintf("\nRejoined %d time(s)", rec.Rejoins)
		}
		if !rec.Active() {
			joined += fmt.Sprintf("\nLeft <t:%d:R>", rec.LeftAt.Unix())
		}
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Joined", Value: joined})

	if invited := deps.Ledger.InvitedBy(guildID, userID); len(invited) > 0 {
		var sb strings.Builder
		for i, r := range invited {
			if i == leaderboardSize {
				fmt.Fprintf(&sb, "...and %d more", len(invited)-i)
				break
			}
			fmt.Fprintf(&sb, "<@%s>", r.MemberID)
			if r.IsAlt {
				sb.WriteString(" (alt)")
			}
			if !r.Active() {
				sb.WriteString(" (left)")
			}
			sb.WriteString("\n")
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Invited Members", Value: sb.String()})
	}

	if deps.Inspector != nil {
		value := "Member not found."
		if b, err := deps.Inspector.InspectMember(ctx, guildID, userID); err == nil {
			value = formatBreakdown(b)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Alt Score", Value: value})
	}
	return embed
}

func formatBreakdown(b *scoring.Breakdown) string {
	var sb strings.Builder
	verdict := "legitimate"
	if b.IsAlt() {
		verdict = "alt"
	}
	fmt.Fprintf(&sb, "**%d** (%s), account age %d days\n", b.Total, verdict, b.AgeDays)
	for _, s := range b.Signals {
		fmt.Fprintf(&sb, "`%+d` %s\n", s.Weight, s.Name)
	}
	if b.ShortCircuited {
		sb.WriteString("Account younger than a week; later checks skipped.\n")
	}
	if b.ProfileErr != nil {
		sb.WriteString("Profile unavailable; profile checks skipped.\n")
	}
	return sb.String()
}

func rankOf(ctx context.Context, r Ranker, guildID, userID string) int {
	if r == nil {
		return 0
	}
	rank, err := r.Rank(ctx, guildID, userID)
	if err != nil {
		return 0
	}
	return rank
}

func MyInvitesCmd(ctx framework.Context, deps InviteDeps) {
	userID := ctx.GetAuthor().ID
	stats := deps.Ledger.GetInviterStats(ctx.GetGuildID(), userID)
	ctx.ReplyEmbed(utils.InviteStatsEmbed(userID, stats, rankOf(ctx.Context(), deps.Ranker, ctx.GetGuildID(), userID)))
}
