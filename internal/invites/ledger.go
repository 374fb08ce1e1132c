package invites

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"discord-invite-tracker/internal/models"

	"go.uber.org/zap"
)

// ErrInvalidAmount is returned by admin adjustments with a non-positive amount.
var ErrInvalidAmount = errors.New("amount must be positive")

// Store persists ledger state.
type Store interface {
	LoadLedger(ctx context.Context) ([]models.InviterStats, []models.MemberJoinRecord, error)
	SaveInviterStats(ctx context.Context, stats models.InviterStats) error
	DeleteInviterStats(ctx context.Context, guildID, userID string) error
	SaveMemberRecord(ctx context.Context, rec models.MemberJoinRecord) error
}

// LeaderboardSink receives the new total of an inviter after every change.
type LeaderboardSink interface {
	UpdateInviteTotal(ctx context.Context, guildID, userID string, total int) error
	RemoveInviter(ctx context.Context, guildID, userID string) error
}

// RankedStats is one leaderboard row.
type RankedStats struct {
	UserID string
	models.StatsView
}

type memberKey struct {
	guildID  string
	memberID string
}

type pendingWrite struct {
	stats   *models.InviterStats
	deleted bool
	member  *models.MemberJoinRecord
}

// Ledger owns inviter counters and member join records. Reads are served from
// memory; writes go through to the Store and are retried on the next mutation
// or Flush when the Store fails.
type Ledger struct {
	mu sync.RWMutex
	// writeMu serialises Store and sink writes so an older value can never
	// land after a newer one.
	writeMu     sync.Mutex
	stats       map[memberKey]*models.InviterStats
	members     map[memberKey]*models.MemberJoinRecord
	dirty       map[string]pendingWrite
	store       Store
	sink        LeaderboardSink
	leaveWeight float64
	now         func() time.Time
	logger      *zap.Logger
}

func NewLedger(store Store, sink LeaderboardSink, leaveWeight float64, logger *zap.Logger) *Ledger {
	return &Ledger{
		stats:       make(map[memberKey]*models.InviterStats),
		members:     make(map[memberKey]*models.MemberJoinRecord),
		dirty:       make(map[string]pendingWrite),
		store:       store,
		sink:        sink,
		leaveWeight: leaveWeight,
		now:         time.Now,
		logger:      logger.Named("ledger"),
	}
}

// Load fills memory from the Store. It is called once at process start.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	stats, members, err := l.store.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range stats {
		s := stats[i]
		l.stats[memberKey{s.GuildID, s.UserID}] = &s
	}
	for i := range members {
		m := members[i]
		l.members[memberKey{m.GuildID, m.MemberID}] = &m
	}
	l.logger.Info("Ledger loaded", zap.Int("inviters", len(stats)), zap.Int("members", len(members)))
	return nil
}

// RecordMemberJoin creates the join record and credits the inviter as regular
// or fake. An empty inviterID records an unattributed join.
func (l *Ledger) RecordMemberJoin(ctx context.Context, guildID, memberID, inviterID, code string, isAlt bool) {
	l.mu.Lock()
	rec := &models.MemberJoinRecord{
		GuildID:   guildID,
		MemberID:  memberID,
		InviterID: inviterID,
		Code:      code,
		JoinedAt:  l.now(),
		IsAlt:     isAlt,
	}
	l.members[memberKey{guildID, memberID}] = rec
	l.markMemberLocked(rec)

	if inviterID != "" {
		s := l.statsLocked(guildID, inviterID)
		if isAlt {
			s.Fake++
		} else {
			s.Regular++
		}
		l.markStatsLocked(s)
	}
	l.mu.Unlock()

	if inviterID != "" {
		l.persist(ctx, memberKey{guildID, inviterID})
	} else {
		l.persist(ctx)
	}
}

// RecordMemberRejoin reopens the member's previous record for display. It
// never credits anyone. Returns nil when the member has no prior record.
func (l *Ledger) RecordMemberRejoin(ctx context.Context, guildID, memberID string) *models.MemberJoinRecord {
	l.mu.Lock()
	rec, ok := l.members[memberKey{guildID, memberID}]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	rec.LeftAt = nil
	rec.Rejoins++
	rec.JoinedAt = l.now()
	l.markMemberLocked(rec)
	cp := *rec
	l.mu.Unlock()

	l.persist(ctx)
	return &cp
}

// RecordMemberLeave closes the member's record and counts a leave against the
// original inviter. Unknown or already departed members are a no-op. Only the
// first departure is counted: a rejoin grants no credit, so later leaves of
// the same member deduct nothing.
func (l *Ledger) RecordMemberLeave(ctx context.Context, guildID, memberID string) (*models.MemberJoinRecord, bool) {
	l.mu.Lock()
	rec, ok := l.members[memberKey{guildID, memberID}]
	if !ok || !rec.Active() {
		l.mu.Unlock()
		return nil, false
	}
	now := l.now()
	rec.LeftAt = &now
	l.markMemberLocked(rec)

	counted := rec.InviterID != "" && rec.Rejoins == 0
	if counted {
		s := l.statsLocked(guildID, rec.InviterID)
		s.Leaves++
		l.markStatsLocked(s)
	}
	cp := *rec
	l.mu.Unlock()

	if counted {
		l.persist(ctx, memberKey{guildID, rec.InviterID})
	} else {
		l.persist(ctx)
	}
	return &cp, true
}

// AddBonusInvites grants n bonus invites.
func (l *Ledger) AddBonusInvites(ctx context.Context, guildID, inviterID string, n int) (models.StatsView, error) {
	if n <= 0 {
		return models.StatsView{}, ErrInvalidAmount
	}
	return l.adjust(ctx, guildID, inviterID, func(s *models.InviterStats) {
		s.Bonus += n
	})
}

// RemoveInvites takes n invites away: bonus is drained first and the rest is
// booked as fake so regular credit history stays intact.
func (l *Ledger) RemoveInvites(ctx context.Context, guildID, inviterID string, n int) (models.StatsView, error) {
	if n <= 0 {
		return models.StatsView{}, ErrInvalidAmount
	}
	return l.adjust(ctx, guildID, inviterID, func(s *models.InviterStats) {
		fromBonus := min(n, s.Bonus)
		s.Bonus -= fromBonus
		s.Fake += n - fromBonus
	})
}

func (l *Ledger) adjust(ctx context.Context, guildID, inviterID string, fn func(*models.InviterStats)) (models.StatsView, error) {
	l.mu.Lock()
	s := l.statsLocked(guildID, inviterID)
	fn(s)
	l.markStatsLocked(s)
	view := s.View(l.leaveWeight)
	l.mu.Unlock()

	l.persist(ctx, memberKey{guildID, inviterID})
	return view, nil
}

// ResetUser deletes an inviter's counters. Join records of their invitees are
// kept so rejoins are still recognised.
func (l *Ledger) ResetUser(ctx context.Context, guildID, inviterID string) bool {
	key := memberKey{guildID, inviterID}

	l.mu.Lock()
	_, ok := l.stats[key]
	if ok {
		delete(l.stats, key)
		l.dirty[statsDirtyKey(guildID, inviterID)] = pendingWrite{
			stats:   &models.InviterStats{GuildID: guildID, UserID: inviterID},
			deleted: true,
		}
	}
	l.mu.Unlock()

	if !ok {
		return false
	}
	l.persist(ctx, key)
	return true
}

// GetInviterStats returns the computed totals; unknown inviters read as zero.
func (l *Ledger) GetInviterStats(guildID, inviterID string) models.StatsView {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.stats[memberKey{guildID, inviterID}]
	if !ok {
		return models.InviterStats{}.View(l.leaveWeight)
	}
	return s.View(l.leaveWeight)
}

// MemberRecord returns a copy of the member's latest join record.
func (l *Ledger) MemberRecord(guildID, memberID string) (models.MemberJoinRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.members[memberKey{guildID, memberID}]
	if !ok {
		return models.MemberJoinRecord{}, false
	}
	return *rec, true
}

// InvitedBy lists the join records attributed to an inviter, newest first.
func (l *Ledger) InvitedBy(guildID, inviterID string) []models.MemberJoinRecord {
	l.mu.RLock()
	var out []models.MemberJoinRecord
	for k, rec := range l.members {
		if k.guildID == guildID && rec.InviterID == inviterID {
			out = append(out, *rec)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].JoinedAt.After(out[j].JoinedAt)
	})
	return out
}

// Leaderboard ranks a guild's inviters by total, then regular, then id.
func (l *Ledger) Leaderboard(guildID string, limit int) []RankedStats {
	l.mu.RLock()
	var rows []RankedStats
	for k, s := range l.stats {
		if k.guildID != guildID {
			continue
		}
		rows = append(rows, RankedStats{UserID: k.memberID, StatsView: s.View(l.leaveWeight)})
	}
	l.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		if rows[i].Regular != rows[j].Regular {
			return rows[i].Regular > rows[j].Regular
		}
		return rows[i].UserID < rows[j].UserID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// Totals returns every inviter total grouped by guild.
func (l *Ledger) Totals() map[string]map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]map[string]int)
	for k, s := range l.stats {
		guild, ok := out[k.guildID]
		if !ok {
			guild = make(map[string]int)
			out[k.guildID] = guild
		}
		guild[k.memberID] = s.View(l.leaveWeight).Total
	}
	return out
}

// LeaveWeight returns the per-leave deduction weight.
func (l *Ledger) LeaveWeight() float64 {
	return l.leaveWeight
}

// Pending returns how many writes are waiting to be persisted.
func (l *Ledger) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.dirty)
}

// Flush persists pending writes, returning the first error encountered.
func (l *Ledger) Flush(ctx context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.flushLocked(ctx)
}

// persist flushes pending writes and publishes the current totals of the
// given inviters. Errors stay in the pending set and are logged by flush.
func (l *Ledger) persist(ctx context.Context, inviters ...memberKey) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.flushLocked(ctx)
	for _, key := range inviters {
		l.pushTotalLocked(ctx, key)
	}
}

func (l *Ledger) statsLocked(guildID, inviterID string) *models.InviterStats {
	key := memberKey{guildID, inviterID}
	s, ok := l.stats[key]
	if !ok {
		s = &models.InviterStats{GuildID: guildID, UserID: inviterID}
		l.stats[key] = s
	}
	return s
}

func (l *Ledger) markStatsLocked(s *models.InviterStats) {
	cp := *s
	l.dirty[statsDirtyKey(s.GuildID, s.UserID)] = pendingWrite{stats: &cp}
}

func (l *Ledger) markMemberLocked(rec *models.MemberJoinRecord) {
	cp := *rec
	l.dirty["member:"+rec.GuildID+":"+rec.MemberID] = pendingWrite{member: &cp}
}

func statsDirtyKey(guildID, userID string) string {
	return "stats:" + guildID + ":" + userID
}

// flushLocked writes a snapshot of the pending set. Callers hold writeMu.
func (l *Ledger) flushLocked(ctx context.Context) error {
	if l.store == nil {
		l.mu.Lock()
		clear(l.dirty)
		l.mu.Unlock()
		return nil
	}

	l.mu.Lock()
	batch := make(map[string]pendingWrite, len(l.dirty))
	for k, w := range l.dirty {
		batch[k] = w
	}
	l.mu.Unlock()

	var firstErr error
	for key, w := range batch {
		var err error
		switch {
		case w.member != nil:
			err = l.store.SaveMemberRecord(ctx, *w.member)
		case w.deleted:
			err = l.store.DeleteInviterStats(ctx, w.stats.GuildID, w.stats.UserID)
		default:
			err = l.store.SaveInviterStats(ctx, *w.stats)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			l.logger.Warn("Ledger write failed, will retry", zap.String("key", key), zap.Error(err))
			continue
		}

		l.mu.Lock()
		// Only clear the entry if no newer write replaced it meanwhile.
		if cur, ok := l.dirty[key]; ok && samePending(cur, w) {
			delete(l.dirty, key)
		}
		l.mu.Unlock()
	}
	return firstErr
}

func samePending(a, b pendingWrite) bool {
	return a.stats == b.stats && a.member == b.member && a.deleted == b.deleted
}

// pushTotalLocked sends the inviter's total as it is now, not as it was when
// the mutation happened. Callers hold writeMu.
func (l *Ledger) pushTotalLocked(ctx context.Context, key memberKey) {
	if l.sink == nil {
		return
	}
	l.mu.RLock()
	s, ok := l.stats[key]
	var total int
	if ok {
		total = s.View(l.leaveWeight).Total
	}
	l.mu.RUnlock()

	if !ok {
		if err := l.sink.RemoveInviter(ctx, key.guildID, key.memberID); err != nil {
			l.logger.Warn("Failed to remove inviter from leaderboard", zap.String("user_id", key.memberID), zap.Error(err))
		}
		return
	}
	if err := l.sink.UpdateInviteTotal(ctx, key.guildID, key.memberID, total); err != nil {
		l.logger.Warn("Failed to update leaderboard", zap.String("user_id", key.memberID), zap.Error(err))
	}
}
