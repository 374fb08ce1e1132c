package invites

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"discord-invite-tracker/internal/models"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrUnresolved is returned when the used invite cannot be determined.
var ErrUnresolved = errors.New("invite could not be resolved")

// InviteSource lists the current invites of a guild.
type InviteSource interface {
	GuildInvites(ctx context.Context, guildID string) ([]models.InviteRecord, error)
}

// ResolveOptions bounds the resolution retry loop by count.
type ResolveOptions struct {
	Retries  uint64
	Interval time.Duration
	// ConsumedWindow is how long a deleted single-use invite may still be
	// credited to a join. Defaults to 10s.
	ConsumedWindow time.Duration
}

const defaultConsumedWindow = 10 * time.Second

// retiredInvite is a deleted invite that was one use short of its limit.
type retiredInvite struct {
	models.InviteRecord
	deletedAt time.Time
}

// Tracker keeps the last known invite set of every guild and diffs it against
// fresh listings to find which invite a new member used.
type Tracker struct {
	mu      sync.Mutex
	guilds  map[string]map[string]models.InviteRecord
	retired map[string]map[string]retiredInvite
	source  InviteSource
	opts    ResolveOptions
	now     func() time.Time
	logger  *zap.Logger
}

func NewTracker(source InviteSource, opts ResolveOptions, logger *zap.Logger) *Tracker {
	if opts.ConsumedWindow <= 0 {
		opts.ConsumedWindow = defaultConsumedWindow
	}
	return &Tracker{
		guilds:  make(map[string]map[string]models.InviteRecord),
		retired: make(map[string]map[string]retiredInvite),
		source:  source,
		opts:    opts,
		now:     time.Now,
		logger:  logger.Named("tracker"),
	}
}

// Snapshot replaces the known invite set of a guild.
func (t *Tracker) Snapshot(guildID string, invites []models.InviteRecord) {
	set := make(map[string]models.InviteRecord, len(invites))
	for _, inv := range invites {
		inv.GuildID = guildID
		set[inv.Code] = inv
	}

	t.mu.Lock()
	t.guilds[guildID] = set
	t.mu.Unlock()
}

// Refresh fetches and snapshots the invites of a guild.
func (t *Tracker) Refresh(ctx context.Context, guildID string) error {
	invites, err := t.source.GuildInvites(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to list invites for guild %s: %w", guildID, err)
	}
	t.Snapshot(guildID, invites)
	return nil
}

func (t *Tracker) OnInviteCreate(inv models.InviteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.guilds[inv.GuildID]
	if !ok {
		set = make(map[string]models.InviteRecord)
		t.guilds[inv.GuildID] = set
	}
	set[inv.Code] = inv
}

// OnInviteDelete forgets a code. The gateway also deletes invites that run
// out of uses, and an exhausted invite looks the same as a revoked one, so a
// code deleted one use short of its limit is retired: a join resolved within
// ConsumedWindow of the deletion may still be credited to it.
func (t *Tracker) OnInviteDelete(guildID, code string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.guilds[guildID]
	if !ok {
		return
	}
	inv, ok := set[code]
	if !ok {
		return
	}
	delete(set, code)
	if inv.MaxUses == 0 || inv.Uses+1 < inv.MaxUses {
		return
	}
	retired, ok := t.retired[guildID]
	if !ok {
		retired = make(map[string]retiredInvite)
		t.retired[guildID] = retired
	}
	retired[code] = retiredInvite{InviteRecord: inv, deletedAt: t.now()}
}

// Get returns a known invite by code.
func (t *Tracker) Get(guildID, code string) (models.InviteRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inv, ok := t.guilds[guildID][code]
	return inv, ok
}

// Resolve returns the invite consumed by the latest join. Uses that have not
// propagated yet are retried a bounded number of times.
func (t *Tracker) Resolve(ctx context.Context, guildID string) (models.InviteRecord, error) {
	var used models.InviteRecord

	op := func() error {
		current, err := t.source.GuildInvites(ctx, guildID)
		if err != nil {
			return err
		}
		inv, ok := t.diff(guildID, current)
		if !ok {
			return ErrUnresolved
		}
		used = inv
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.opts.Interval), t.opts.Retries),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		t.logger.Debug("Invite resolution failed", zap.String("guild_id", guildID), zap.Error(err))
		return models.InviteRecord{}, ErrUnresolved
	}
	return used, nil
}

// diff compares a fresh listing with the cached set and installs the listing
// as the new cached set when exactly one candidate is found.
func (t *Tracker) diff(guildID string, current []models.InviteRecord) (models.InviteRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := make(map[string]models.InviteRecord, len(current))
	for _, inv := range current {
		inv.GuildID = guildID
		fresh[inv.Code] = inv
	}

	known, ok := t.guilds[guildID]
	if !ok {
		// Nothing to diff against; this listing becomes the baseline.
		t.guilds[guildID] = fresh
		return models.InviteRecord{}, false
	}

	var candidates []models.InviteRecord
	for _, inv := range fresh {
		prev, ok := known[inv.Code]
		if !ok {
			if inv.Uses > 0 {
				candidates = append(candidates, inv)
			}
			continue
		}
		if inv.Uses > prev.Uses {
			candidates = append(candidates, inv)
		}
	}

	// A single-use code deleted moments ago was most likely consumed by this
	// join. Older deletions are revocations and are dropped.
	now := t.now()
	retired := t.retired[guildID]
	var consumed []string
	for code, r := range retired {
		if now.Sub(r.deletedAt) > t.opts.ConsumedWindow {
			delete(retired, code)
			continue
		}
		if _, ok := fresh[code]; ok {
			continue
		}
		used := r.InviteRecord
		used.Uses++
		candidates = append(candidates, used)
		consumed = append(consumed, code)
	}
	for _, code := range consumed {
		delete(retired, code)
	}

	if len(candidates) == 0 {
		for code, inv := range fresh {
			if _, ok := known[code]; !ok {
				known[code] = inv
			}
		}
		return models.InviteRecord{}, false
	}

	if len(candidates) > 1 {
		// Several joins landed between listings; take the new counts
		// so the next join diffs cleanly.
		t.guilds[guildID] = fresh
		return models.InviteRecord{}, false
	}

	t.guilds[guildID] = fresh
	return candidates[0], true
}
