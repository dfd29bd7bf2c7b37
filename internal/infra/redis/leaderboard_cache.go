package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// LeaderboardCache shares computed daily boards across service instances.
// Boards are stored as JSON under quiz:leaderboard:daily:{day} with a TTL, so a
// completion on any instance only needs a DEL to force a rebuild everywhere.
type LeaderboardCache struct {
	client *redis.Client
}

func NewLeaderboardCache(client *redis.Client) *LeaderboardCache {
	return &LeaderboardCache{client: client}
}

func (c *LeaderboardCache) Get(ctx context.Context, day domain.Day) (domain.Leaderboard, bool, error) {
	data, err := c.client.Get(ctx, c.key(day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Leaderboard{}, false, nil
	}
	if err != nil {
		return domain.Leaderboard{}, false, fmt.Errorf("get leaderboard: %w", err)
	}
	var board domain.Leaderboard
	if err := json.Unmarshal(data, &board); err != nil {
		return domain.Leaderboard{}, false, fmt.Errorf("decode leaderboard: %w", err)
	}
	return board, true, nil
}

func (c *LeaderboardCache) Set(ctx context.Context, board domain.Leaderboard, ttl time.Duration) error {
	data, err := json.Marshal(board)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(board.Day), data, ttl).Err()
}

func (c *LeaderboardCache) Invalidate(ctx context.Context, day domain.Day) error {
	return c.client.Del(ctx, c.key(day)).Err()
}

func (c *LeaderboardCache) key(day domain.Day) string {
	return "quiz:leaderboard:daily:" + string(day)
}
