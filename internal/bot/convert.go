package bot

import (
	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/scoring"

	"github.com/bwmarrin/discordgo"
)

// identityFromMember snapshots a gateway member for scoring. presence may be nil.
func identityFromMember(m *discordgo.Member, presence *scoring.Presence) scoring.Identity {
	id := scoring.Identity{
		Nick:     m.Nick,
		Boosting: m.PremiumSince != nil,
		Presence: presence,
	}
	if m.User == nil {
		return id
	}

	u := m.User
	id.ID = u.ID
	id.Username = u.Username
	id.GlobalName = u.GlobalName
	id.HasAvatar = u.Avatar != "" || m.Avatar != ""
	id.Bot = u.Bot
	id.PublicFlags = int64(u.PublicFlags)
	if created, err := discordgo.SnowflakeTimestamp(u.ID); err == nil {
		id.CreatedAt = created
	}
	return id
}

func presenceFromGateway(p *discordgo.Presence) *scoring.Presence {
	if p == nil {
		return nil
	}
	out := &scoring.Presence{
		Status:     string(p.Status),
		Activities: make([]scoring.Activity, 0, len(p.Activities)),
	}
	for _, a := range p.Activities {
		if a == nil {
			continue
		}
		out.Activities = append(out.Activities, scoring.Activity{
			Type:          int(a.Type),
			Name:          a.Name,
			ApplicationID: a.ApplicationID,
			State:         a.State,
		})
	}
	return out
}

func inviteRecord(guildID string, inv *discordgo.Invite) models.InviteRecord {
	rec := models.InviteRecord{
		GuildID:   guildID,
		Code:      inv.Code,
		Uses:      inv.Uses,
		MaxUses:   inv.MaxUses,
		CreatedAt: inv.CreatedAt,
	}
	if rec.GuildID == "" && inv.Guild != nil {
		rec.GuildID = inv.Guild.ID
	}
	if inv.Inviter != nil {
		rec.InviterID = inv.Inviter.ID
		rec.InviterBot = inv.Inviter.Bot
	}
	return rec
}

func inviteRecords(guildID string, invs []*discordgo.Invite) []models.InviteRecord {
	out := make([]models.InviteRecord, 0, len(invs))
	for _, inv := range invs {
		if inv == nil {
			continue
		}
		out = append(out, inviteRecord(guildID, inv))
	}
	return out
}
