package bot

import (
	"time"

	"discord-invite-tracker/internal/commands"
	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/invites"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) Ready(s *discordgo.Session, r *discordgo.Ready) {
	// State is disabled, so populate the bot user manually.
	if s.State.User == nil {
		s.State.User = r.User
	}
	b.Logger.Info("Gateway ready",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))
}

// GuildCreate fires for every guild after Ready and when the bot joins one.
// Invites are snapshotted here so the first join can be diffed.
func (b *Bot) GuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	start := time.Now()
	defer func() { b.PerfMonitor.TrackEvent(time.Since(start)) }()

	if g.Unavailable {
		return
	}
	b.guildsMu.Lock()
	b.guilds[g.ID] = struct{}{}
	b.guildsMu.Unlock()

	ctx, cancel := b.eventContext()
	defer cancel()

	log := b.Logger.With(zap.String("guild_id", g.ID))
	if err := b.Tracker.Refresh(ctx, g.ID); err != nil {
		// Without Manage Guild the listing fails and every join resolves as vanity.
		log.Warn("Invite snapshot failed", zap.Error(err))
	}

	if s.State.User == nil {
		return
	}
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, g.ID, commands.Commands)
	if err != nil {
		log.Warn("Failed to register commands", zap.Error(err))
		return
	}
	log.Info("Guild loaded", zap.String("name", g.Name), zap.Int("commands", len(commands.Commands)))
}

func (b *Bot) GuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		return
	}
	b.guildsMu.Lock()
	delete(b.guilds, g.ID)
	b.guildsMu.Unlock()
}

func (b *Bot) GuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil {
		return
	}
	start := time.Now()
	defer func() { b.PerfMonitor.TrackEvent(time.Since(start)) }()

	ctx, cancel := b.eventContext()
	defer cancel()

	presence, _ := b.Presences.Peek(ctx, presenceKey(m.GuildID, m.User.ID))
	b.Handler.HandleJoin(ctx, invites.JoinEvent{
		GuildID: m.GuildID,
		Member:  identityFromMember(m.Member, presence),
	})
}

func (b *Bot) GuildMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.Member == nil || m.User == nil {
		return
	}
	start := time.Now()
	defer func() { b.PerfMonitor.TrackEvent(time.Since(start)) }()

	ctx, cancel := b.eventContext()
	defer cancel()

	b.Presences.Delete(ctx, presenceKey(m.GuildID, m.User.ID))
	b.Handler.HandleLeave(ctx, invites.LeaveEvent{
		GuildID:  m.GuildID,
		MemberID: m.User.ID,
	})
}

func (b *Bot) InviteCreate(s *discordgo.Session, e *discordgo.InviteCreate) {
	if e.Invite == nil {
		return
	}
	b.PerfMonitor.TrackEvent(0)
	b.Tracker.OnInviteCreate(inviteRecord(e.GuildID, e.Invite))
}

func (b *Bot) InviteDelete(s *discordgo.Session, e *discordgo.InviteDelete) {
	b.PerfMonitor.TrackEvent(0)
	b.Tracker.OnInviteDelete(e.GuildID, e.Code)
}

func (b *Bot) PresenceUpdate(s *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil {
		return
	}
	b.Presences.Set(b.ctx, presenceKey(p.GuildID, p.User.ID), presenceFromGateway(&p.Presence))
}

func (b *Bot) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" {
		if err := utils.SendError(s, i, "Commands can only be used inside a server."); err != nil {
			b.Logger.Debug("Failed to answer DM interaction", zap.Error(err))
		}
		return
	}
	b.PerfMonitor.TrackCommand()

	ctx, cancel := b.eventContext()
	defer cancel()
	cmdCtx := framework.NewSlashContext(ctx, s, i)

	deps := commands.InviteDeps{
		Ledger:    b.Ledger,
		Ranker:    b.Leaderboard,
		Inspector: b,
	}

	switch name := i.ApplicationCommandData().Name; name {
	case "invites":
		commands.InvitesCmd(cmdCtx, deps)
	case "myinvites":
		commands.MyInvitesCmd(cmdCtx, deps)
	case "affiliate":
		commands.AffiliateCmd(cmdCtx, b.DB)
	case "ping":
		commands.PingCmd(cmdCtx, i.ID, b.DB, b.Redis)
	case "stats":
		commands.StatsCmd(cmdCtx, b.runtimeStats(i.GuildID))
	default:
		b.Logger.Debug("Unknown command", zap.String("name", name))
	}
}

func (b *Bot) runtimeStats(guildID string) commands.RuntimeStats {
	st := b.PerfMonitor.Snapshot()
	st.StartTime = b.StartTime
	st.Guilds = b.guildCount()
	st.PendingWrites = b.Ledger.Pending()
	st.JoinsLastMinute, st.AltsLastHour = b.Monitor.Counts(guildID, time.Now())

	profiles := b.Profiles.GetMetrics()
	st.ProfileL1HitRate = profiles.L1HitRate
	st.ProfileL2HitRate = profiles.L2HitRate
	return st
}
