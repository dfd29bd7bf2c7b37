package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// LeaderboardCache keeps computed daily boards in process memory.
type LeaderboardCache struct {
	clock func() time.Time

	mu     sync.RWMutex
	boards map[domain.Day]cachedBoard
}

type cachedBoard struct {
	board     domain.Leaderboard
	expiresAt time.Time
}

func NewLeaderboardCache() *LeaderboardCache {
	return &LeaderboardCache{
		clock:  time.Now,
		boards: make(map[domain.Day]cachedBoard),
	}
}

func (c *LeaderboardCache) Get(_ context.Context, day domain.Day) (domain.Leaderboard, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.boards[day]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Leaderboard{}, false, nil
	}
	return copyBoard(entry.board), true, nil
}

func (c *LeaderboardCache) Set(_ context.Context, board domain.Leaderboard, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	// drop expired days while we hold the lock
	for day, entry := range c.boards {
		if !entry.expiresAt.After(now) {
			delete(c.boards, day)
		}
	}
	c.boards[board.Day] = cachedBoard{board: copyBoard(board), expiresAt: now.Add(ttl)}
	return nil
}

func (c *LeaderboardCache) Invalidate(_ context.Context, day domain.Day) error {
	c.mu.Lock()
	delete(c.boards, day)
	c.mu.Unlock()
	return nil
}

func copyBoard(b domain.Leaderboard) domain.Leaderboard {
	b.Entries = append([]domain.LeaderboardEntry(nil), b.Entries...)
	return b
}
