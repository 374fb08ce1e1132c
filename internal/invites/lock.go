package invites

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Locker grants a key once per TTL window. Entries are never released
// explicitly; they expire. This gives at-most-once processing within the
// window, not mutual exclusion: a join that runs longer than the TTL can be
// overtaken by a redelivered event.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.expires[key] = now.Add(ttl)
	return true, nil
}

// Sweep drops expired entries and returns how many were removed.
func (l *MemoryLocker) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, exp := range l.expires {
		if !now.Before(exp) {
			delete(l.expires, key)
			removed++
		}
	}
	return removed
}

// FallbackLocker uses a shared locker and drops to a process-local one while
// the shared locker is failing.
type FallbackLocker struct {
	primary  Locker
	fallback *MemoryLocker
	logger   *zap.Logger
}

func NewFallbackLocker(primary Locker, logger *zap.Logger) *FallbackLocker {
	return &FallbackLocker{
		primary:  primary,
		fallback: NewMemoryLocker(),
		logger:   logger.Named("lock"),
	}
}

func (l *FallbackLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.primary.Acquire(ctx, key, ttl)
	if err == nil {
		return ok, nil
	}
	l.logger.Warn("Shared lock unavailable, using local lock", zap.String("key", key), zap.Error(err))
	return l.fallback.Acquire(ctx, key, ttl)
}

// Sweep drops expired entries from the local lock table.
func (l *FallbackLocker) Sweep() int {
	return l.fallback.Sweep()
}

func lockKey(guildID, memberID string) string {
	return "invites:join:" + guildID + ":" + memberID
}
