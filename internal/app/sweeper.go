package app

import (
	"context"
	"time"
)

// RunSweeper abandons stale sessions every interval until ctx is done.
func (s *QuizService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.AbandonStale(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("stale session sweep failed", "err", err)
			}
		}
	}
}
