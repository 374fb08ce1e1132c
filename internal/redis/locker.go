package redis

import (
	"context"
	"time"
)

// Locker is a SET NX PX lock shared by every process using the same Redis.
// Keys are never deleted; they expire after the TTL.
type Locker struct {
	client *Client
}

func NewLocker(c *Client) *Locker {
	return &Locker{client: c}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, 1, ttl)
}
