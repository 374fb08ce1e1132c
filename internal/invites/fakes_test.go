package invites

import (
	"context"
	"errors"
	"sync"
	"time"

	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/scoring"
)

var errStoreDown = errors.New("store unavailable")

type memStore struct {
	mu      sync.Mutex
	fail    bool
	stats   map[string]models.InviterStats
	members map[string]models.MemberJoinRecord
	writes  int
}

func newMemStore() *memStore {
	return &memStore{
		stats:   make(map[string]models.InviterStats),
		members: make(map[string]models.MemberJoinRecord),
	}
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memStore) LoadLedger(context.Context) ([]models.InviterStats, []models.MemberJoinRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats []models.InviterStats
	for _, s := range m.stats {
		stats = append(stats, s)
	}
	var members []models.MemberJoinRecord
	for _, r := range m.members {
		members = append(members, r)
	}
	return stats, members, nil
}

func (m *memStore) SaveInviterStats(_ context.Context, s models.InviterStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	m.writes++
	m.stats[s.GuildID+":"+s.UserID] = s
	return nil
}

func (m *memStore) DeleteInviterStats(_ context.Context, guildID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	m.writes++
	delete(m.stats, guildID+":"+userID)
	return nil
}

func (m *memStore) SaveMemberRecord(_ context.Context, r models.MemberJoinRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	m.writes++
	m.members[r.GuildID+":"+r.MemberID] = r
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	invites []models.InviteRecord
	err     error
	calls   int
}

func (f *fakeSource) set(invites ...models.InviteRecord) {
	f.mu.Lock()
	f.invites = invites
	f.mu.Unlock()
}

func (f *fakeSource) GuildInvites(context.Context, string) ([]models.InviteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.InviteRecord, len(f.invites))
	copy(out, f.invites)
	return out, nil
}

type fixedScorer struct {
	score int
	calls int
}

func (f *fixedScorer) Score(context.Context, scoring.Identity) int {
	f.calls++
	return f.score
}

type recordingNotifier struct {
	mu        sync.Mutex
	announced []string
	welcomed  []string
	fail      bool
}

func (n *recordingNotifier) Announce(_ context.Context, _ string, content string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announced = append(n.announced, content)
	return !n.fail
}

func (n *recordingNotifier) Welcome(_ context.Context, _ string, memberID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomed = append(n.welcomed, memberID)
	return !n.fail
}

func (n *recordingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.announced) + len(n.welcomed)
}

type countingRecorder struct {
	joins  map[Outcome]int
	leaves int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{joins: make(map[Outcome]int)}
}

func (c *countingRecorder) RecordJoin(_ string, outcome Outcome, _ int, _ time.Time) {
	c.joins[outcome]++
}

func (c *countingRecorder) RecordLeave(string) {
	c.leaves++
}

type fakeAffiliates struct {
	affiliates map[string]string
	referrals  []models.AffiliateReferral
}

func (f *fakeAffiliates) LookupAffiliate(_ context.Context, guildID, code string) (*models.Affiliate, error) {
	uid, ok := f.affiliates[code]
	if !ok {
		return nil, nil
	}
	return &models.Affiliate{GuildID: guildID, Code: code, UserID: uid}, nil
}

func (f *fakeAffiliates) HasReferral(_ context.Context, _ string, memberID string) (bool, error) {
	for _, r := range f.referrals {
		if r.MemberID == memberID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAffiliates) RecordReferral(_ context.Context, ref models.AffiliateReferral) error {
	f.referrals = append(f.referrals, ref)
	return nil
}
