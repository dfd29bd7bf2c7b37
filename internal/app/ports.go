package app

import (
	"context"
	"time"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// QuestionBank is the question retrieval collaborator. Question returns the
// full question including correctness flags.
type QuestionBank interface {
	RandomQuestions(ctx context.Context, count int) ([]domain.Question, error)
	Question(ctx context.Context, questionID string) (domain.Question, error)
}

// Store persists users and quiz sessions. Every mutation goes through RunInTx so
// that user counters change in the same transaction as the session event.
type Store interface {
	// EnsureUser provisions the user row on first sight and refreshes the display name.
	EnsureUser(ctx context.Context, ref domain.UserRef) (domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetSession(ctx context.Context, sessionID string) (domain.QuizSession, error)
	// RecentSessions returns the user's active sessions plus sessions completed at or after since.
	RecentSessions(ctx context.Context, userID string, since time.Time) ([]domain.QuizSession, error)
	// ListDailyStandings returns users whose last session is day and who completed it within [from, to).
	ListDailyStandings(ctx context.Context, day domain.Day, from, to time.Time) ([]domain.User, error)
	// AbandonStale marks active sessions idle since before cutoff as abandoned and returns their ids.
	AbandonStale(ctx context.Context, cutoff time.Time) ([]string, error)
	// RunInTx runs fn with exclusive access to userID's records; fn's error rolls back.
	RunInTx(ctx context.Context, userID string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is a unit of work bound to one locked user.
type Tx interface {
	User(ctx context.Context) (domain.User, error)
	SaveUser(ctx context.Context, user domain.User) error
	RecentSessions(ctx context.Context, since time.Time) ([]domain.QuizSession, error)
	// Session loads one of the locked user's sessions; foreign sessions are ErrSessionNotFound.
	Session(ctx context.Context, sessionID string) (domain.QuizSession, error)
	// CreateSession inserts a new session. Uniqueness violations surface as ErrActiveSessionExists.
	CreateSession(ctx context.Context, session domain.QuizSession) error
	// AppendAnswer stores session's last answer at position expectedIndex and the
	// updated session counters, provided the stored index still equals expectedIndex.
	// Otherwise it returns ErrQuestionMismatch.
	AppendAnswer(ctx context.Context, session domain.QuizSession, expectedIndex int) error
	// SaveSession writes status, completion and activity fields.
	SaveSession(ctx context.Context, session domain.QuizSession) error
}

// LeaderboardCache holds computed daily boards between completions.
type LeaderboardCache interface {
	Get(ctx context.Context, day domain.Day) (domain.Leaderboard, bool, error)
	Set(ctx context.Context, board domain.Leaderboard, ttl time.Duration) error
	Invalidate(ctx context.Context, day domain.Day) error
}
