package invites

import (
	"context"
	"fmt"
	"time"

	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/scoring"

	"go.uber.org/zap"
)

// Outcome classifies how a join event was handled.
type Outcome int

const (
	OutcomeDuplicate Outcome = iota
	OutcomeBotMember
	OutcomeVanity
	OutcomeSelfOrBot
	OutcomeRejoin
	OutcomeAlt
	OutcomeRegular
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeBotMember:
		return "bot_member"
	case OutcomeVanity:
		return "vanity"
	case OutcomeSelfOrBot:
		return "self_or_bot"
	case OutcomeRejoin:
		return "rejoin"
	case OutcomeAlt:
		return "alt"
	case OutcomeRegular:
		return "regular"
	}
	return "unknown"
}

type JoinEvent struct {
	GuildID string
	Member  scoring.Identity
}

type LeaveEvent struct {
	GuildID  string
	MemberID string
}

// JoinOutcome describes the result of HandleJoin.
type JoinOutcome struct {
	Outcome   Outcome
	InviterID string
	Code      string
	Score     int
	Stats     models.StatsView
}

// MemberScorer scores a newly joined identity.
type MemberScorer interface {
	Score(ctx context.Context, id scoring.Identity) int
}

// Notifier delivers best-effort messages. A false return is logged only.
type Notifier interface {
	Announce(ctx context.Context, guildID, content string) bool
	Welcome(ctx context.Context, guildID, memberID string) bool
}

// JoinRecorder observes handled joins and leaves.
type JoinRecorder interface {
	RecordJoin(guildID string, outcome Outcome, score int, at time.Time)
	RecordLeave(guildID string)
}

// AffiliateDirectory maps invite codes to registered affiliates and stores
// referrals for the commission ledger.
type AffiliateDirectory interface {
	LookupAffiliate(ctx context.Context, guildID, code string) (*models.Affiliate, error)
	HasReferral(ctx context.Context, guildID, memberID string) (bool, error)
	RecordReferral(ctx context.Context, ref models.AffiliateReferral) error
}

type HandlerConfig struct {
	LockTTL time.Duration
}

// Handler orchestrates join and leave events against the tracker, scorer and
// ledger.
type Handler struct {
	tracker    *Tracker
	ledger     *Ledger
	scorer     MemberScorer
	notifier   Notifier
	locker     Locker
	recorder   JoinRecorder
	affiliates AffiliateDirectory
	cfg        HandlerConfig
	now        func() time.Time
	logger     *zap.Logger
}

type HandlerDeps struct {
	Tracker    *Tracker
	Ledger     *Ledger
	Scorer     MemberScorer
	Notifier   Notifier
	Locker     Locker
	Recorder   JoinRecorder
	Affiliates AffiliateDirectory
}

func NewHandler(deps HandlerDeps, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Handler{
		tracker:    deps.Tracker,
		ledger:     deps.Ledger,
		scorer:     deps.Scorer,
		notifier:   deps.Notifier,
		locker:     locker,
		recorder:   deps.Recorder,
		affiliates: deps.Affiliates,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.Named("invites"),
	}
}

// HandleJoin processes one member-join event.
func (h *Handler) HandleJoin(ctx context.Context, ev JoinEvent) JoinOutcome {
	member := ev.Member
	log := h.logger.With(zap.String("guild_id", ev.GuildID), zap.String("member_id", member.ID))

	if member.Bot {
		return h.finish(ev.GuildID, JoinOutcome{Outcome: OutcomeBotMember})
	}

	ok, err := h.locker.Acquire(ctx, lockKey(ev.GuildID, member.ID), h.cfg.LockTTL)
	if err != nil {
		// A broken lock backend must not block joins.
		log.Warn("Join lock unavailable, processing anyway", zap.Error(err))
	} else if !ok {
		log.Debug("Duplicate join event ignored")
		return h.finish(ev.GuildID, JoinOutcome{Outcome: OutcomeDuplicate})
	}

	inv, err := h.tracker.Resolve(ctx, ev.GuildID)
	if err != nil {
		return h.handleVanity(ctx, ev, log)
	}

	if inv.InviterID == "" {
		return h.handleVanity(ctx, ev, log)
	}
	if inv.InviterID == member.ID || inv.InviterBot {
		log.Debug("Self or bot invite discarded", zap.String("code", inv.Code))
		return h.finish(ev.GuildID, JoinOutcome{Outcome: OutcomeSelfOrBot, InviterID: inv.InviterID, Code: inv.Code})
	}

	if _, seen := h.ledger.MemberRecord(ev.GuildID, member.ID); seen {
		return h.handleRejoin(ctx, ev, inv, log)
	}

	score := h.scorer.Score(ctx, member)
	isAlt := score <= 0
	h.ledger.RecordMemberJoin(ctx, ev.GuildID, member.ID, inv.InviterID, inv.Code, isAlt)
	stats := h.ledger.GetInviterStats(ev.GuildID, inv.InviterID)

	out := JoinOutcome{InviterID: inv.InviterID, Code: inv.Code, Score: score, Stats: stats}
	if isAlt {
		out.Outcome = OutcomeAlt
		log.Info("Alt account joined", zap.String("inviter_id", inv.InviterID), zap.Int("score", score))
		h.announce(ctx, ev.GuildID, fmt.Sprintf(
			"<@%s> joined using <@%s>'s invite, but was flagged as an alt account. <@%s> received **0** invites (total **%d**).",
			member.ID, inv.InviterID, inv.InviterID, stats.Total), log)
	} else {
		out.Outcome = OutcomeRegular
		log.Info("Member joined", zap.String("inviter_id", inv.InviterID), zap.Int("score", score))
		h.announce(ctx, ev.GuildID, fmt.Sprintf(
			"<@%s> joined using <@%s>'s invite. <@%s> now has **%d** invites.",
			member.ID, inv.InviterID, inv.InviterID, stats.Total), log)
		h.recordReferral(ctx, ev.GuildID, inv.Code, member.ID, false, log)
	}
	h.welcome(ctx, ev.GuildID, member.ID, log)
	return h.finish(ev.GuildID, out)
}

func (h *Handler) handleVanity(ctx context.Context, ev JoinEvent, log *zap.Logger) JoinOutcome {
	if _, seen := h.ledger.MemberRecord(ev.GuildID, ev.Member.ID); seen {
		h.ledger.RecordMemberRejoin(ctx, ev.GuildID, ev.Member.ID)
	} else {
		h.ledger.RecordMemberJoin(ctx, ev.GuildID, ev.Member.ID, "", "", false)
	}
	log.Info("Vanity or unresolved join")
	h.announce(ctx, ev.GuildID, fmt.Sprintf("<@%s> joined the server. Welcome!", ev.Member.ID), log)
	h.welcome(ctx, ev.GuildID, ev.Member.ID, log)
	return h.finish(ev.GuildID, JoinOutcome{Outcome: OutcomeVanity})
}

func (h *Handler) handleRejoin(ctx context.Context, ev JoinEvent, inv models.InviteRecord, log *zap.Logger) JoinOutcome {
	prev := h.ledger.RecordMemberRejoin(ctx, ev.GuildID, ev.Member.ID)
	out := JoinOutcome{Outcome: OutcomeRejoin, Code: inv.Code}

	content := fmt.Sprintf("<@%s> rejoined the server. No invite credit was given.", ev.Member.ID)
	if prev != nil && prev.InviterID != "" {
		out.InviterID = prev.InviterID
		out.Stats = h.ledger.GetInviterStats(ev.GuildID, prev.InviterID)
		content = fmt.Sprintf("<@%s> rejoined the server. Originally invited by <@%s>; no new invite credit was given.",
			ev.Member.ID, prev.InviterID)
	}
	log.Info("Member rejoined", zap.String("original_inviter_id", out.InviterID), zap.String("code", inv.Code))

	h.recordReferral(ctx, ev.GuildID, inv.Code, ev.Member.ID, true, log)
	h.announce(ctx, ev.GuildID, content, log)
	h.welcome(ctx, ev.GuildID, ev.Member.ID, log)
	return h.finish(ev.GuildID, out)
}

// HandleLeave counts a leave against the member's original inviter. Members
// without a join record are ignored.
func (h *Handler) HandleLeave(ctx context.Context, ev LeaveEvent) bool {
	log := h.logger.With(zap.String("guild_id", ev.GuildID), zap.String("member_id", ev.MemberID))

	rec, ok := h.ledger.RecordMemberLeave(ctx, ev.GuildID, ev.MemberID)
	if !ok {
		log.Debug("Leave without join record ignored")
		return false
	}
	if h.recorder != nil {
		h.recorder.RecordLeave(ev.GuildID)
	}

	if rec.InviterID == "" {
		h.announce(ctx, ev.GuildID, fmt.Sprintf("<@%s> left the server.", ev.MemberID), log)
		return true
	}
	stats := h.ledger.GetInviterStats(ev.GuildID, rec.InviterID)
	log.Info("Member left", zap.String("inviter_id", rec.InviterID))
	h.announce(ctx, ev.GuildID, fmt.Sprintf("<@%s> left the server. They were invited by <@%s>, who now has **%d** invites.",
		ev.MemberID, rec.InviterID, stats.Total), log)
	return true
}

func (h *Handler) recordReferral(ctx context.Context, guildID, code, memberID string, rejoin bool, log *zap.Logger) {
	if h.affiliates == nil || code == "" {
		return
	}
	aff, err := h.affiliates.LookupAffiliate(ctx, guildID, code)
	if err != nil {
		log.Warn("Affiliate lookup failed", zap.String("code", code), zap.Error(err))
		return
	}
	if aff == nil {
		return
	}
	if rejoin {
		exists, err := h.affiliates.HasReferral(ctx, guildID, memberID)
		if err != nil {
			log.Warn("Referral lookup failed", zap.Error(err))
			return
		}
		if exists {
			return
		}
	}
	err = h.affiliates.RecordReferral(ctx, models.AffiliateReferral{
		GuildID:  guildID,
		Code:     code,
		MemberID: memberID,
		At:       h.now(),
	})
	if err != nil {
		log.Warn("Failed to record affiliate referral", zap.String("code", code), zap.Error(err))
		return
	}
	log.Info("Affiliate referral recorded", zap.String("affiliate_id", aff.UserID), zap.String("code", code))
}

func (h *Handler) announce(ctx context.Context, guildID, content string, log *zap.Logger) {
	if h.notifier == nil {
		return
	}
	if !h.notifier.Announce(ctx, guildID, content) {
		log.Warn("Announcement not delivered")
	}
}

func (h *Handler) welcome(ctx context.Context, guildID, memberID string, log *zap.Logger) {
	if h.notifier == nil {
		return
	}
	if !h.notifier.Welcome(ctx, guildID, memberID) {
		log.Warn("Welcome message not delivered")
	}
}

func (h *Handler) finish(guildID string, out JoinOutcome) JoinOutcome {
	if h.recorder != nil {
		h.recorder.RecordJoin(guildID, out.Outcome, out.Score, h.now())
	}
	return out
}
