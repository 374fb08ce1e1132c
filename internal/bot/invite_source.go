package bot

import (
	"context"
	"fmt"

	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/scoring"

	"github.com/bwmarrin/discordgo"
)

type inviteLister interface {
	GuildInvites(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Invite, error)
}

// sessionInviteSource lists guild invites over REST.
type sessionInviteSource struct {
	rest inviteLister
}

func (src sessionInviteSource) GuildInvites(ctx context.Context, guildID string) ([]models.InviteRecord, error) {
	invs, err := src.rest.GuildInvites(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return inviteRecords(guildID, invs), nil
}

// InspectMember scores a current guild member and returns every signal that
// fired. Used by the admin details command.
func (b *Bot) InspectMember(ctx context.Context, guildID, userID string) (*scoring.Breakdown, error) {
	m, err := b.Session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch member %s: %w", userID, err)
	}
	presence, _ := b.Presences.Peek(ctx, presenceKey(guildID, userID))
	return b.Scorer.Explain(ctx, identityFromMember(m, presence)), nil
}

func presenceKey(guildID, userID string) string {
	return guildID + ":" + userID
}
