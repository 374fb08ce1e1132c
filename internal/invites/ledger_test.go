package invites

import (
	"context"
	"sync"
	"testing"
	"time"

	"discord-invite-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const guild = "guild-1"

func newTestLedger(store Store) *Ledger {
	return NewLedger(store, nil, 1.0, zap.NewNop())
}

func TestLedger_TotalIgnoresFake(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newMemStore())

	for i, alt := range []bool{false, false, false, true, true} {
		l.RecordMemberJoin(ctx, guild, memberID(i), "inviter", "abc", alt)
	}
	_, err := l.AddBonusInvites(ctx, guild, "inviter", 1)
	require.NoError(t, err)
	_, ok := l.RecordMemberLeave(ctx, guild, memberID(0))
	require.True(t, ok)

	stats := l.GetInviterStats(guild, "inviter")
	assert.Equal(t, 3, stats.Regular)
	assert.Equal(t, 2, stats.Fake)
	assert.Equal(t, 1, stats.Bonus)
	assert.Equal(t, 1, stats.Leaves)
	assert.Equal(t, 1, stats.LeavesDeduction)
	assert.Equal(t, 3, stats.Total)
}

func TestLedger_LeaveWeight(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil, nil, 0.5, zap.NewNop())

	for i := 0; i < 4; i++ {
		l.RecordMemberJoin(ctx, guild, memberID(i), "inviter", "abc", false)
	}
	for i := 0; i < 3; i++ {
		l.RecordMemberLeave(ctx, guild, memberID(i))
	}

	stats := l.GetInviterStats(guild, "inviter")
	assert.Equal(t, 2, stats.LeavesDeduction)
	assert.Equal(t, 2, stats.Total)
}

func TestLedger_AddBonus(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newMemStore())
	l.RecordMemberJoin(ctx, guild, "m1", "user", "abc", false)
	l.RecordMemberJoin(ctx, guild, "m2", "user", "abc", true)
	before := l.GetInviterStats(guild, "user")

	view, err := l.AddBonusInvites(ctx, guild, "user", 5)
	require.NoError(t, err)

	after := l.GetInviterStats(guild, "user")
	assert.Equal(t, view, after)
	assert.Equal(t, before.Bonus+5, after.Bonus)
	assert.Equal(t, before.Regular, after.Regular)
	assert.Equal(t, before.Fake, after.Fake)
	assert.Equal(t, before.Leaves, after.Leaves)

	_, err = l.AddBonusInvites(ctx, guild, "user", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedger_RemoveInvitesDrainsBonusFirst(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)
	_, err := l.AddBonusInvites(ctx, guild, "user", 2)
	require.NoError(t, err)

	view, err := l.RemoveInvites(ctx, guild, "user", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Bonus)
	assert.Equal(t, 3, view.Fake)
	assert.Equal(t, 0, view.Regular)

	_, err = l.RemoveInvites(ctx, guild, "user", -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedger_LeaveWithoutRecordIsNoop(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)

	rec, ok := l.RecordMemberLeave(context.Background(), guild, "ghost")
	assert.False(t, ok)
	assert.Nil(t, rec)
	assert.Zero(t, store.writes)
	assert.Empty(t, l.Leaderboard(guild, 10))
}

func TestLedger_DoubleLeaveCountsOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)
	l.RecordMemberJoin(ctx, guild, "m1", "user", "abc", false)

	_, first := l.RecordMemberLeave(ctx, guild, "m1")
	_, second := l.RecordMemberLeave(ctx, guild, "m1")
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 1, l.GetInviterStats(guild, "user").Leaves)
}

func TestLedger_RepeatedRejoinCountsOneLeave(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)
	l.RecordMemberJoin(ctx, guild, "m1", "user", "abc", false)

	for i := 0; i < 3; i++ {
		_, left := l.RecordMemberLeave(ctx, guild, "m1")
		assert.True(t, left)
		require.NotNil(t, l.RecordMemberRejoin(ctx, guild, "m1"))
	}
	_, left := l.RecordMemberLeave(ctx, guild, "m1")
	assert.True(t, left)

	stats := l.GetInviterStats(guild, "user")
	assert.Equal(t, 1, stats.Regular)
	assert.Equal(t, 1, stats.Leaves)
	assert.Equal(t, 0, stats.Total)
}

func TestLedger_RejoinGrantsNoCredit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)
	l.RecordMemberJoin(ctx, guild, "m1", "user", "abc", false)
	l.RecordMemberLeave(ctx, guild, "m1")
	before := l.GetInviterStats(guild, "user")

	prev := l.RecordMemberRejoin(ctx, guild, "m1")
	require.NotNil(t, prev)
	assert.Equal(t, "user", prev.InviterID)
	assert.True(t, prev.Active())
	assert.Equal(t, 1, prev.Rejoins)
	assert.Equal(t, before, l.GetInviterStats(guild, "user"))

	assert.Nil(t, l.RecordMemberRejoin(ctx, guild, "unknown"))
}

func TestLedger_VanityJoinHasNoInviter(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)
	l.RecordMemberJoin(ctx, guild, "m1", "", "", false)

	rec, ok := l.MemberRecord(guild, "m1")
	require.True(t, ok)
	assert.Empty(t, rec.InviterID)
	assert.Empty(t, l.Leaderboard(guild, 10))

	_, left := l.RecordMemberLeave(ctx, guild, "m1")
	assert.True(t, left)
	assert.Empty(t, l.Leaderboard(guild, 10))
}

func TestLedger_FailedWritesRetried(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)

	store.setFail(true)
	l.RecordMemberJoin(ctx, guild, "m1", "user", "abc", false)
	assert.Equal(t, 2, l.Pending())
	// Reads keep working from memory.
	assert.Equal(t, 1, l.GetInviterStats(guild, "user").Regular)

	store.setFail(false)
	l.RecordMemberJoin(ctx, guild, "m2", "user", "abc", false)
	assert.Zero(t, l.Pending())
	assert.Equal(t, 2, store.stats[guild+":user"].Regular)
	assert.Contains(t, store.members, guild+":m1")
	assert.Contains(t, store.members, guild+":m2")
}

func TestLedger_FlushAndReload(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.setFail(true)
	l := newTestLedger(store)
	l.RecordMemberJoin(ctx, guild, "m1", "user", "abc", false)
	require.Error(t, l.Flush(ctx))

	store.setFail(false)
	require.NoError(t, l.Flush(ctx))

	reloaded := newTestLedger(store)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.GetInviterStats(guild, "user").Regular)
	_, ok := reloaded.MemberRecord(guild, "m1")
	assert.True(t, ok)
}

func TestLedger_ResetUser(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	l.RecordMemberJoin(ctx, guild, "m1", "user", "abc", false)

	assert.True(t, l.ResetUser(ctx, guild, "user"))
	assert.False(t, l.ResetUser(ctx, guild, "user"))
	assert.Zero(t, l.GetInviterStats(guild, "user").Total)
	assert.NotContains(t, store.stats, guild+":user")

	_, ok := l.MemberRecord(guild, "m1")
	assert.True(t, ok)
}

func TestLedger_Leaderboard(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)
	l.RecordMemberJoin(ctx, guild, "m1", "a", "x", false)
	l.RecordMemberJoin(ctx, guild, "m2", "b", "y", false)
	l.RecordMemberJoin(ctx, guild, "m3", "b", "y", false)
	l.AddBonusInvites(ctx, guild, "c", 2)
	l.RecordMemberJoin(ctx, "other-guild", "m4", "d", "z", false)

	rows := l.Leaderboard(guild, 10)
	require.Len(t, rows, 3)
	assert.Equal(t, "b", rows[0].UserID)
	assert.Equal(t, "c", rows[1].UserID)
	assert.Equal(t, "a", rows[2].UserID)

	assert.Len(t, l.Leaderboard(guild, 1), 1)
}

func TestLedger_InvitedBy(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)
	l.RecordMemberJoin(ctx, guild, "m1", "a", "x", false)
	l.RecordMemberJoin(ctx, guild, "m2", "a", "x", true)
	l.RecordMemberJoin(ctx, guild, "m3", "b", "y", false)

	recs := l.InvitedBy(guild, "a")
	assert.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, "a", r.InviterID)
	}
}

type sinkCall struct {
	userID string
	total  int
}

type recordingSink struct {
	updates []sinkCall
	removed []string
}

func (s *recordingSink) UpdateInviteTotal(_ context.Context, _ string, userID string, total int) error {
	s.updates = append(s.updates, sinkCall{userID, total})
	return nil
}

func (s *recordingSink) RemoveInviter(_ context.Context, _ string, userID string) error {
	s.removed = append(s.removed, userID)
	return nil
}

func TestLedger_PushesTotalsToSink(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	l := NewLedger(nil, sink, 1.0, zap.NewNop())

	l.RecordMemberJoin(ctx, guild, "m1", "a", "x", false)
	l.AddBonusInvites(ctx, guild, "a", 2)
	l.RecordMemberLeave(ctx, guild, "m1")
	l.ResetUser(ctx, guild, "a")

	assert.Equal(t, []sinkCall{{"a", 1}, {"a", 3}, {"a", 2}}, sink.updates)
	assert.Equal(t, []string{"a"}, sink.removed)
}

func memberID(i int) string {
	return "member-" + string(rune('a'+i))
}

func TestLedger_Totals(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)
	l.RecordMemberJoin(ctx, guild, "m1", "a", "abc", false)
	l.RecordMemberJoin(ctx, guild, "m2", "a", "abc", false)
	l.RecordMemberJoin(ctx, "guild-2", "m3", "b", "def", false)
	_, err := l.AddBonusInvites(ctx, "guild-2", "b", 4)
	require.NoError(t, err)

	totals := l.Totals()
	assert.Equal(t, map[string]map[string]int{
		guild:     {"a": 2},
		"guild-2": {"b": 5},
	}, totals)
}

// gatedStore holds the first inviter write until release is closed.
type gatedStore struct {
	*memStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		memStore: newMemStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedStore) SaveInviterStats(ctx context.Context, s models.InviterStats) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.memStore.SaveInviterStats(ctx, s)
}

type lockedSink struct {
	mu     sync.Mutex
	totals map[string]int
}

func (s *lockedSink) UpdateInviteTotal(_ context.Context, _ string, userID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[userID] = total
	return nil
}

func (s *lockedSink) RemoveInviter(_ context.Context, _ string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.totals, userID)
	return nil
}

func TestLedger_SlowWriteNotOverwrittenBySlowerOlderValue(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore()
	sink := &lockedSink{totals: make(map[string]int)}
	l := NewLedger(store, sink, 1.0, zap.NewNop())

	first := make(chan struct{})
	go func() {
		l.RecordMemberJoin(ctx, guild, "m1", "inviter", "abc", false)
		close(first)
	}()
	<-store.entered

	second := make(chan struct{})
	go func() {
		l.RecordMemberJoin(ctx, guild, "m2", "inviter", "abc", false)
		close(second)
	}()
	require.Eventually(t, func() bool {
		return l.GetInviterStats(guild, "inviter").Regular == 2
	}, time.Second, time.Millisecond)

	close(store.release)
	<-first
	<-second

	store.mu.Lock()
	persisted := store.stats[guild+":inviter"]
	store.mu.Unlock()
	assert.Equal(t, 2, persisted.Regular)
	assert.Zero(t, l.Pending())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 2, sink.totals["inviter"])
}
