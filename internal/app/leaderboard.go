package app

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/daily"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// LeaderboardConfig tunes the aggregator.
type LeaderboardConfig struct {
	Limit    int           // max entries returned; 0 means unlimited
	CacheTTL time.Duration // how long a computed board may be served from cache
	Logger   *slog.Logger
	Now      func() time.Time
}

// Leaderboard derives the daily standings from per-user counters. Nothing is
// reset destructively: other days are filtered out by the store query.
type Leaderboard struct {
	store    Store
	cache    LeaderboardCache
	calendar *daily.Calendar
	limit    int
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	sf       singleflight.Group

	// generations is bumped per day on every invalidation; a rebuild that
	// started under an older generation must not write the cache.
	genMu       sync.Mutex
	generations map[domain.Day]uint64

	mu          sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
}

// NewLeaderboard wires the aggregator. cache may be nil.
func NewLeaderboard(store Store, cache LeaderboardCache, calendar *daily.Calendar, cfg LeaderboardConfig) *Leaderboard {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Leaderboard{
		store:       store,
		cache:       cache,
		calendar:    calendar,
		limit:       cfg.Limit,
		ttl:         cfg.CacheTTL,
		now:         cfg.Now,
		logger:      cfg.Logger,
		generations: make(map[domain.Day]uint64),
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// Daily returns today's ranked board.
func (l *Leaderboard) Daily(ctx context.Context) (domain.Leaderboard, error) {
	day := l.calendar.Today(l.now())
	if l.cache != nil {
		board, ok, err := l.cache.Get(ctx, day)
		if err != nil {
			l.logger.Warn("leaderboard cache read failed", "day", day, "err", err)
		} else if ok {
			return board, nil
		}
	}

	result, err, _ := l.sf.Do(string(day), func() (interface{}, error) {
		return l.rebuild(ctx, day)
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

// OnSessionCompleted refreshes the standing of the completion day and pushes
// the new board to subscribers. The counters themselves were already committed
// with the completion, so failures here only cost freshness.
func (l *Leaderboard) OnSessionCompleted(ctx context.Context, userID string, day domain.Day, dailyScoreDelta, dailyStreak int) {
	l.logger.Info("session completed",
		"user_id", userID, "day", day, "score_delta", dailyScoreDelta, "daily_streak", dailyStreak)

	l.bumpGeneration(day)
	l.sf.Forget(string(day))
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, day); err != nil {
			l.logger.Warn("leaderboard cache invalidation failed", "day", day, "err", err)
		}
	}
	if day != l.calendar.Today(l.now()) {
		return
	}
	board, err := l.rebuild(ctx, day)
	if err != nil {
		l.logger.Warn("leaderboard rebuild failed", "day", day, "err", err)
		return
	}
	l.broadcast(board)
}

// Subscribe returns a channel that receives board updates, primed with the
// current board. The caller must invoke cancel to avoid leaks.
func (l *Leaderboard) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	initial, err := l.Daily(ctx)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan domain.Leaderboard, 8)

	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()

	ch <- initial

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subscribers[ch]; ok {
			delete(l.subscribers, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel, nil
}

func (l *Leaderboard) rebuild(ctx context.Context, day domain.Day) (domain.Leaderboard, error) {
	gen := l.generation(day)
	from, to, err := l.calendar.Window(day)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	users, err := l.store.ListDailyStandings(ctx, day, from, to)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	board := domain.Leaderboard{
		Day:       day,
		Entries:   RankStandings(users, l.limit),
		UpdatedAt: l.now(),
	}
	if l.cache != nil && l.ttl > 0 {
		l.genMu.Lock()
		defer l.genMu.Unlock()
		if l.generations[day] != gen {
			l.logger.Debug("discarding stale leaderboard rebuild", "day", day)
			return board, nil
		}
		if err := l.cache.Set(ctx, board, l.ttl); err != nil {
			l.logger.Warn("leaderboard cache write failed", "day", day, "err", err)
		}
	}
	return board, nil
}

func (l *Leaderboard) generation(day domain.Day) uint64 {
	l.genMu.Lock()
	defer l.genMu.Unlock()
	return l.generations[day]
}

func (l *Leaderboard) bumpGeneration(day domain.Day) {
	l.genMu.Lock()
	l.generations[day]++
	l.genMu.Unlock()
}

func (l *Leaderboard) broadcast(board domain.Leaderboard) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subscribers {
		select {
		case ch <- board:
		default:
			// Slow subscriber: drop its stale board so the newest one fits.
			select {
			case <-ch:
			default:
			}
			ch <- board
		}
	}
}

// RankStandings orders users by daily score desc, daily streak desc, earlier
// completion, then user id, and assigns 1-based ranks.
func RankStandings(users []domain.User, limit int) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		e := domain.LeaderboardEntry{
			UserRef:     u.ID,
			DisplayName: u.DisplayName,
			DailyScore:  u.DailyScore,
			DailyStreak: u.DailyStreak,
		}
		if u.LastCompletedAt != nil {
			e.CompletedAt = *u.LastCompletedAt
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.DailyScore != b.DailyScore {
			return a.DailyScore > b.DailyScore
		}
		if a.DailyStreak != b.DailyStreak {
			return a.DailyStreak > b.DailyStreak
		}
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.Before(b.CompletedAt)
		}
		return a.UserRef < b.UserRef
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
