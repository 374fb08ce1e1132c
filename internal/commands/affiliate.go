package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var Affiliate = &discordgo.ApplicationCommand{
	Name:                     "affiliate",
	Description:              "Manage affiliate invite codes",
	DefaultMemberPermissions: &adminPermission,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "register",
			Description: "Assign an invite code to an affiliate",
			Options: []*discordgo.ApplicationCommandOption{
				codeOption(),
				userOption("Affiliate who owns the code"),
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "remove",
			Description: "Unregister an affiliate invite code",
			Options: []*discordgo.ApplicationCommandOption{
				codeOption(),
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "referrals",
			Description: "Show how many members an affiliate referred",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("Affiliate to inspect"),
			},
		},
	},
}

func codeOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "code",
		Description: "Invite code, without the discord.gg/ prefix",
		Required:    true,
	}
}

type AffiliateStore interface {
	RegisterAffiliate(ctx context.Context, a models.Affiliate) error
	RemoveAffiliate(ctx context.Context, guildID, code string) (bool, error)
	AffiliateReferralCounts(ctx context.Context, guildID, userID string) (map[string]int, error)
}

// normalizeCode accepts a bare code or a full invite link.
func normalizeCode(raw string) string {
	code := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://", "http://", "discord.gg/", "discord.com/invite/"} {
		code = strings.TrimPrefix(code, prefix)
	}
	return code
}

func AffiliateCmd(ctx framework.Context, store AffiliateStore) {
	if !ctx.IsAdmin() {
		ctx.ReplyEphemeral(utils.EmojiCross + " You need the Administrator permission to use this command.")
		return
	}
	guildID := ctx.GetGuildID()

	switch ctx.Subcommand() {
	case "register":
		code := normalizeCode(ctx.StringOption("code"))
		userID := ctx.UserOption("user")
		if code == "" {
			ctx.ReplyEphemeral(utils.EmojiCross + " Invalid invite code.")
			return
		}
		err := store.RegisterAffiliate(ctx.Context(), models.Affiliate{GuildID: guildID, Code: code, UserID: userID})
		if err != nil {
			ctx.ReplyEphemeral(fmt.Sprintf("%s Failed to register affiliate: %v", utils.EmojiCross, err))
			return
		}
		ctx.Reply(fmt.Sprintf("%s `%s` now refers members for <@%s>.", utils.EmojiTick, code, userID))

	case "remove":
		code := normalizeCode(ctx.StringOption("code"))
		ok, err := store.RemoveAffiliate(ctx.Context(), guildID, code)
		if err != nil {
			ctx.ReplyEphemeral(fmt.Sprintf("%s Failed to remove affiliate: %v", utils.EmojiCross, err))
			return
		}
		if !ok {
			ctx.ReplyEphemeral(fmt.Sprintf("%s `%s` is not an affiliate code.", utils.EmojiCross, code))
			return
		}
		ctx.Reply(fmt.Sprintf("%s Removed affiliate code `%s`.", utils.EmojiTick, code))

	case "referrals":
		userID := ctx.UserOption("user")
		counts, err := store.AffiliateReferralCounts(ctx.Context(), guildID, userID)
		if err != nil {
			ctx.ReplyEphemeral(fmt.Sprintf("%s Failed to load referrals: %v", utils.EmojiCross, err))
			return
		}
		if len(counts) == 0 {
			ctx.ReplyEphemeral(fmt.Sprintf("<@%s> has no affiliate codes.", userID))
			return
		}
		codes := make([]string, 0, len(counts))
		for c := range counts {
			codes = append(codes, c)
		}
		sort.Strings(codes)

		var sb strings.Builder
		total := 0
		for _, c := range codes {
			fmt.Fprintf(&sb, "`%s`: **%d**\n", c, counts[c])
			total += counts[c]
		}
		fmt.Fprintf(&sb, "\nTotal referrals: **%d**", total)
		ctx.ReplyEmbed(&discordgo.MessageEmbed{
			Title:       "Affiliate Referrals",
			Description: fmt.Sprintf("<@%s>\n\n%s", userID, sb.String()),
			Color:       utils.ColorDark,
		})

	default:
		ctx.ReplyEphemeral(utils.EmojiCross + " Unknown subcommand.")
	}
}
