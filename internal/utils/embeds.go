package utils

import (
	"fmt"
	"strings"
	"time"

	"discord-invite-tracker/internal/models"

	"github.com/bwmarrin/discordgo"
)

// InviteStatsEmbed renders an inviter's counters. rank is omitted when 0.
func InviteStatsEmbed(userID string, v models.StatsView, rank int) *discordgo.MessageEmbed {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<@%s> has **%d** invites.\n\n", userID, v.Total)
	fmt.Fprintf(&sb, "**Regular:** %d\n", v.Regular)
	fmt.Fprintf(&sb, "**Bonus:** %d\n", v.Bonus)
	fmt.Fprintf(&sb, "**Fake:** %d\n", v.Fake)
	fmt.Fprintf(&sb, "**Leaves:** %d (-%d)", v.Leaves, v.LeavesDeduction)

	embed := &discordgo.MessageEmbed{
		Title:       EmojiInvite + " Invites",
		Description: sb.String(),
		Color:       ColorDark,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if rank > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Rank #%d", rank)}
	}
	return embed
}

// LeaderboardRow is one line of the invite leaderboard.
type LeaderboardRow struct {
	UserID  string
	Total   int
	Regular int
	Fake    int
	Leaves  int
}

func LeaderboardEmbed(rows []LeaderboardRow) *discordgo.MessageEmbed {
	var sb strings.Builder
	if len(rows) == 0 {
		sb.WriteString("No invites recorded yet.")
	}
	for i, r := range rows {
		fmt.Fprintf(&sb, "**%d.** <@%s> - **%d** invites (%d regular, %d fake, %d leaves)\n",
			i+1, r.UserID, r.Total, r.Regular, r.Fake, r.Leaves)
	}
	return &discordgo.MessageEmbed{
		Title:       EmojiTrophy + " Invite Leaderboard",
		Description: sb.String(),
		Color:       ColorDark,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

// FormatUptime renders a duration as "1d 2h 3m 4s".
func FormatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}
