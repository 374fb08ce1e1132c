package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Leaderboard mirrors inviter totals into one sorted set per guild.
type Leaderboard struct {
	client *Client
}

func NewLeaderboard(c *Client) *Leaderboard {
	return &Leaderboard{client: c}
}

func leaderboardKey(guildID string) string {
	return fmt.Sprintf("invites:leaderboard:%s", guildID)
}

func (l *Leaderboard) UpdateInviteTotal(ctx context.Context, guildID, userID string, total int) error {
	return l.client.ZAdd(ctx, leaderboardKey(guildID), float64(total), userID)
}

func (l *Leaderboard) RemoveInviter(ctx context.Context, guildID, userID string) error {
	return l.client.ZRem(ctx, leaderboardKey(guildID), userID)
}

// Rank returns the 1-based position of userID, or 0 when unranked.
func (l *Leaderboard) Rank(ctx context.Context, guildID, userID string) (int, error) {
	rank, err := l.client.ZRevRank(ctx, leaderboardKey(guildID), userID)
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(rank) + 1, nil
}

// Rebuild replaces a guild's ranking from authoritative totals.
func (l *Leaderboard) Rebuild(ctx context.Context, guildID string, totals map[string]int) error {
	key := leaderboardKey(guildID)
	return l.client.ExecutePipeline(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		for userID, total := range totals {
			pipe.ZAdd(ctx, key, redis.Z{Score: float64(total), Member: userID})
		}
		return nil
	})
}
