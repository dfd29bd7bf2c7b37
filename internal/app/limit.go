package app

import (
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/daily"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// Decision is the outcome of a daily limit check.
type Decision struct {
	Allowed        bool
	Reason         error
	Active         *domain.QuizSession
	CompletedToday *domain.QuizSession
}

// LimitEnforcer decides whether a user may start a session today. It is fed
// the same RecentSessions read by both the status query and session start.
type LimitEnforcer struct {
	calendar *daily.Calendar
}

func NewLimitEnforcer(calendar *daily.Calendar) *LimitEnforcer {
	return &LimitEnforcer{calendar: calendar}
}

// Check evaluates the user's recent sessions against today. An active session
// wins over a completed one because the caller has to resume it; abandoned
// sessions never block.
func (l *LimitEnforcer) Check(sessions []domain.QuizSession, today domain.Day) Decision {
	var d Decision
	for i := range sessions {
		s := sessions[i]
		switch s.Status {
		case domain.SessionActive:
			if d.Active == nil || s.StartedAt.After(d.Active.StartedAt) {
				d.Active = &s
			}
		case domain.SessionCompleted:
			if s.CompletedAt != nil && l.calendar.Contains(today, *s.CompletedAt) {
				d.CompletedToday = &s
			}
		}
	}

	switch {
	case d.Active != nil:
		d.Reason = &domain.ActiveSessionError{SessionID: d.Active.ID}
	case d.CompletedToday != nil:
		d.Reason = domain.ErrDailyLimitReached
	default:
		d.Allowed = true
	}
	return d
}
