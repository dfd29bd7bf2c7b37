package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/app"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

const pgUniqueViolation = "23505"

// Open returns a bun handle on the given DSN.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store is the Postgres implementation of app.Store. Per-user serialization
// comes from locking the user row; the partial unique indexes on quiz_sessions
// back the one-session-per-day rule.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

var _ app.Store = (*Store)(nil)

func (s *Store) EnsureUser(ctx context.Context, ref domain.UserRef) (domain.User, error) {
	m := &userModel{ID: ref.ID, DisplayName: ref.DisplayName}
	_, err := s.db.NewInsert().
		Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE u.display_name END").
		Set("updated_at = current_timestamp").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return selectUser(ctx, s.db, userID, false)
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	return selectSession(ctx, s.db, sessionID, "")
}

func (s *Store) RecentSessions(ctx context.Context, userID string, since time.Time) ([]domain.QuizSession, error) {
	return selectRecent(ctx, s.db, userID, since)
}

func (s *Store) ListDailyStandings(ctx context.Context, day domain.Day, from, to time.Time) ([]domain.User, error) {
	var models []userModel
	err := s.db.NewSelect().
		Model(&models).
		Where("u.last_session_date = ?", string(day)).
		Where("u.last_completed_at >= ?", from).
		Where("u.last_completed_at < ?", to).
		OrderExpr("u.daily_score DESC, u.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list daily standings: %w", err)
	}
	users := make([]domain.User, len(models))
	for i := range models {
		users[i] = models[i].toDomain()
	}
	return users, nil
}

// AbandonStale flips idle active sessions in one statement. Rows locked by an
// in-flight answer are re-checked by Postgres after that transaction commits.
func (s *Store) AbandonStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	_, err := s.db.NewUpdate().
		Model((*sessionModel)(nil)).
		Set("status = ?", domain.SessionAbandoned).
		Where("s.status = ?", domain.SessionActive).
		Where("s.last_activity_at < ?", cutoff).
		Returning("s.id").
		Exec(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("abandon stale sessions: %w", err)
	}
	return ids, nil
}

// RunInTx locks the user row for the duration of fn.
func (s *Store) RunInTx(ctx context.Context, userID string, fn func(ctx context.Context, tx app.Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := selectUser(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		return fn(ctx, &storeTx{tx: tx, userID: userID, user: user})
	})
}

type storeTx struct {
	tx     bun.Tx
	userID string
	user   domain.User
}

func (t *storeTx) User(_ context.Context) (domain.User, error) {
	return t.user, nil
}

func (t *storeTx) SaveUser(ctx context.Context, user domain.User) error {
	user.ID = t.userID
	m := userFromDomain(user)
	_, err := t.tx.NewUpdate().
		Model(m).
		Column("display_name", "daily_score", "daily_streak", "total_score", "last_session_date", "last_completed_at").
		Set("updated_at = current_timestamp").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	t.user = user
	return nil
}

func (t *storeTx) RecentSessions(ctx context.Context, since time.Time) ([]domain.QuizSession, error) {
	return selectRecent(ctx, t.tx, t.userID, since)
}

func (t *storeTx) Session(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	return selectSession(ctx, t.tx, sessionID, t.userID)
}

func (t *storeTx) CreateSession(ctx context.Context, session domain.QuizSession) error {
	if session.UserID != t.userID {
		return domain.ErrSessionNotFound
	}
	if _, err := t.tx.NewInsert().Model(sessionFromDomain(session)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActiveSessionExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (t *storeTx) AppendAnswer(ctx context.Context, session domain.QuizSession, expectedIndex int) error {
	if len(session.Answers) != expectedIndex+1 {
		return domain.ErrQuestionMismatch
	}
	res, err := t.tx.NewUpdate().
		Model(sessionFromDomain(session)).
		Column("current_question_index", "score", "streak", "max_streak", "last_activity_at").
		WherePK().
		Where("s.user_id = ?", t.userID).
		Where("s.status = ?", domain.SessionActive).
		Where("s.current_question_index = ?", expectedIndex).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("advance session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrQuestionMismatch
	}

	a := session.Answers[expectedIndex]
	_, err = t.tx.NewInsert().Model(&answerModel{
		SessionID:        session.ID,
		Position:         expectedIndex,
		QuestionID:       a.QuestionID,
		SelectedOptionID: a.SelectedOptionID,
		IsCorrect:        a.IsCorrect,
		Points:           a.Points,
		StreakAfter:      a.StreakAfter,
		AnsweredAt:       a.AnsweredAt,
	}).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrQuestionMismatch
		}
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (t *storeTx) SaveSession(ctx context.Context, session domain.QuizSession) error {
	res, err := t.tx.NewUpdate().
		Model(sessionFromDomain(session)).
		Column("status", "current_question_index", "score", "streak", "max_streak",
			"completed_at", "last_activity_at", "result").
		WherePK().
		Where("s.user_id = ?", t.userID).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActiveSessionExists
		}
		return fmt.Errorf("save session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func selectUser(ctx context.Context, db bun.IDB, userID string, forUpdate bool) (domain.User, error) {
	m := new(userModel)
	q := db.NewSelect().Model(m).Where("u.id = ?", userID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return m.toDomain(), nil
}

// selectSession loads one session with its answers. A non-empty ownerID hides
// sessions belonging to anyone else.
func selectSession(ctx context.Context, db bun.IDB, sessionID, ownerID string) (domain.QuizSession, error) {
	m := new(sessionModel)
	q := db.NewSelect().
		Model(m).
		Relation("Answers", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("a.position ASC")
		}).
		Where("s.id = ?", sessionID)
	if ownerID != "" {
		q = q.Where("s.user_id = ?", ownerID)
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.QuizSession{}, domain.ErrSessionNotFound
		}
		return domain.QuizSession{}, fmt.Errorf("load session: %w", err)
	}
	return m.toDomain(), nil
}

func selectRecent(ctx context.Context, db bun.IDB, userID string, since time.Time) ([]domain.QuizSession, error) {
	var models []sessionModel
	err := db.NewSelect().
		Model(&models).
		Relation("Answers", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("a.position ASC")
		}).
		Where("s.user_id = ?", userID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("s.status = ?", domain.SessionActive).
				WhereOr("s.status = ? AND s.completed_at >= ?", domain.SessionCompleted, since)
		}).
		OrderExpr("s.started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load recent sessions: %w", err)
	}
	sessions := make([]domain.QuizSession, len(models))
	for i := range models {
		sessions[i] = models[i].toDomain()
	}
	return sessions, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.IntegrityViolation() && pgErr.Field('C') == pgUniqueViolation
}
