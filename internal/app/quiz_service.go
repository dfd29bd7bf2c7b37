package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/daily"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/scoring"
)

// ServiceConfig carries the engine's tunables and collaborators that have sane defaults.
type ServiceConfig struct {
	Calendar             *daily.Calendar
	Scoring              scoring.Config
	DefaultQuestionCount int
	MaxQuestionCount     int
	// StaleAfter is how long an active session may sit idle before AbandonStale takes it.
	StaleAfter time.Duration
	// AutoComplete finalizes a session inside the transaction of its last answer.
	AutoComplete bool
	Logger       *slog.Logger
	Now          func() time.Time
	NewID        func() string
}

// StatusView is everything a client needs on load to resume, block or start fresh.
type StatusView struct {
	Today                domain.Day             `json:"today"`
	HasCompletedToday    bool                   `json:"has_completed_today"`
	HasActiveSession     bool                   `json:"has_active_session"`
	CanStart             bool                   `json:"can_start"`
	ActiveSessionID      string                 `json:"active_session_id,omitempty"`
	CurrentQuestionIndex *int                   `json:"current_question_index,omitempty"`
	TotalQuestions       int                    `json:"total_questions,omitempty"`
	CurrentQuestion      *domain.PublicQuestion `json:"current_question,omitempty"`
	TodayResult          *domain.SessionResult  `json:"today_result,omitempty"`
}

// QuizService is the session state machine: start, serve, answer, complete.
type QuizService struct {
	store       Store
	questions   QuestionBank
	leaderboard *Leaderboard
	limits      *LimitEnforcer
	calendar    *daily.Calendar
	scorer      *scoring.Calculator
	cfg         ServiceConfig
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

func NewQuizService(store Store, questions QuestionBank, leaderboard *Leaderboard, cfg ServiceConfig) *QuizService {
	if cfg.Calendar == nil {
		cfg.Calendar = daily.MustCalendar("UTC")
	}
	if cfg.Scoring == (scoring.Config{}) {
		cfg.Scoring = scoring.DefaultConfig()
	}
	if cfg.DefaultQuestionCount <= 0 {
		cfg.DefaultQuestionCount = 10
	}
	if cfg.MaxQuestionCount < cfg.DefaultQuestionCount {
		cfg.MaxQuestionCount = cfg.DefaultQuestionCount
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 6 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	return &QuizService{
		store:       store,
		questions:   questions,
		leaderboard: leaderboard,
		limits:      NewLimitEnforcer(cfg.Calendar),
		calendar:    cfg.Calendar,
		scorer:      scoring.NewCalculator(cfg.Scoring),
		cfg:         cfg,
		logger:      cfg.Logger,
		now:         cfg.Now,
		newID:       cfg.NewID,
	}
}

// EnsureUser provisions the caller resolved by the identity collaborator.
func (s *QuizService) EnsureUser(ctx context.Context, ref domain.UserRef) (domain.User, error) {
	return s.store.EnsureUser(ctx, ref)
}

// Status reports today's standing using the same limit check StartSession applies.
func (s *QuizService) Status(ctx context.Context, userID string) (StatusView, error) {
	today := s.calendar.Today(s.now())
	from, _, err := s.calendar.Window(today)
	if err != nil {
		return StatusView{}, err
	}
	recent, err := s.store.RecentSessions(ctx, userID, from)
	if err != nil {
		return StatusView{}, err
	}

	d := s.limits.Check(recent, today)
	view := StatusView{
		Today:             today,
		HasCompletedToday: d.CompletedToday != nil,
		HasActiveSession:  d.Active != nil,
		CanStart:          d.Allowed,
	}
	if d.CompletedToday != nil {
		view.TodayResult = d.CompletedToday.Result
	}
	if d.Active != nil {
		idx := d.Active.CurrentQuestionIndex
		view.ActiveSessionID = d.Active.ID
		view.CurrentQuestionIndex = &idx
		view.TotalQuestions = d.Active.TotalQuestions()
		if qid, ok := d.Active.CurrentQuestionID(); ok {
			q, err := s.questions.Question(ctx, qid)
			if err != nil {
				return StatusView{}, fmt.Errorf("load current question: %w", err)
			}
			pq := q.Public(idx+1, d.Active.TotalQuestions())
			view.CurrentQuestion = &pq
		}
	}
	return view, nil
}

// StartSession creates today's session. count 0 selects the configured default.
func (s *QuizService) StartSession(ctx context.Context, userID string, count int) (domain.QuizSession, error) {
	if count == 0 {
		count = s.cfg.DefaultQuestionCount
	}
	if count < 1 || count > s.cfg.MaxQuestionCount {
		return domain.QuizSession{}, fmt.Errorf("%w: must be between 1 and %d, got %d",
			domain.ErrInvalidQuestionCount, s.cfg.MaxQuestionCount, count)
	}

	now := s.now()
	today := s.calendar.Today(now)
	from, _, err := s.calendar.Window(today)
	if err != nil {
		return domain.QuizSession{}, err
	}

	// Cheap rejection before drawing questions; the authoritative check runs
	// again under the user lock below.
	recent, err := s.store.RecentSessions(ctx, userID, from)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if d := s.limits.Check(recent, today); !d.Allowed {
		return domain.QuizSession{}, d.Reason
	}

	ids, err := s.drawQuestions(ctx, count)
	if err != nil {
		return domain.QuizSession{}, err
	}

	session := domain.QuizSession{
		ID:             s.newID(),
		UserID:         userID,
		Day:            today,
		Status:         domain.SessionActive,
		QuestionIDs:    ids,
		Answers:        []domain.Answer{},
		StartedAt:      now,
		LastActivityAt: now,
	}

	err = s.store.RunInTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		recent, err := tx.RecentSessions(ctx, from)
		if err != nil {
			return err
		}
		if d := s.limits.Check(recent, today); !d.Allowed {
			return d.Reason
		}
		user, err := tx.User(ctx)
		if err != nil {
			return err
		}
		user = s.rollDay(user, today)
		if err := tx.SaveUser(ctx, user); err != nil {
			return err
		}
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return domain.QuizSession{}, err
	}

	s.logger.Info("quiz session started", "user_id", userID, "session_id", session.ID, "questions", count, "day", today)
	return session, nil
}

// CurrentQuestion serves the question at the session's current index without
// correctness flags.
func (s *QuizService) CurrentQuestion(ctx context.Context, userID, sessionID string) (domain.PublicQuestion, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return domain.PublicQuestion{}, err
	}
	if session.Status != domain.SessionActive {
		return domain.PublicQuestion{}, domain.ErrInvalidState
	}
	qid, ok := session.CurrentQuestionID()
	if !ok {
		return domain.PublicQuestion{}, domain.ErrInvalidState
	}
	q, err := s.questions.Question(ctx, qid)
	if err != nil {
		return domain.PublicQuestion{}, err
	}
	return q.Public(session.CurrentQuestionIndex+1, session.TotalQuestions()), nil
}

// SubmitAnswer records the answer for the current question and reveals the
// correct option.
func (s *QuizService) SubmitAnswer(ctx context.Context, userID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	var (
		result    domain.AnswerResult
		completed *domain.QuizSession
	)
	err := s.store.RunInTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		session, err := tx.Session(ctx, sub.SessionID)
		if err != nil {
			return err
		}
		if session.Status != domain.SessionActive {
			return domain.ErrInvalidState
		}
		current, ok := session.CurrentQuestionID()
		if !ok || current != sub.QuestionID {
			return domain.ErrQuestionMismatch
		}
		question, err := s.questions.Question(ctx, current)
		if err != nil {
			return err
		}
		if _, ok := question.Option(sub.SelectedOptionID); !ok {
			return domain.ErrOptionNotFound
		}

		correctID := question.CorrectOptionID()
		correct := sub.SelectedOptionID == correctID
		points, streak := s.scorer.Score(correct, question.Difficulty, session.Streak)
		now := s.now()

		expected := session.CurrentQuestionIndex
		session.Answers = append(session.Answers, domain.Answer{
			QuestionID:       current,
			SelectedOptionID: sub.SelectedOptionID,
			IsCorrect:        correct,
			Points:           points,
			StreakAfter:      streak,
			AnsweredAt:       now,
		})
		session.CurrentQuestionIndex++
		session.Score += points
		session.Streak = streak
		if streak > session.MaxStreak {
			session.MaxStreak = streak
		}
		session.LastActivityAt = now

		user, err := tx.User(ctx)
		if err != nil {
			return err
		}
		user.DailyScore += points
		user.TotalScore += points
		if correct {
			user.DailyStreak++
		} else {
			user.DailyStreak = 0
		}

		result = domain.AnswerResult{
			IsCorrect:       correct,
			CorrectOptionID: correctID,
			Points:          points,
			Streak:          session.Streak,
			Score:           session.Score,
			DailyScore:      user.DailyScore,
			DailyStreak:     user.DailyStreak,
			SessionComplete: session.FullyAnswered(),
			QuestionNumber:  expected + 1,
		}

		if s.cfg.AutoComplete && session.FullyAnswered() {
			res := s.finalize(&session, &user, now)
			result.Result = &res
			completed = &session
		}

		if err := tx.AppendAnswer(ctx, session, expected); err != nil {
			return err
		}
		if completed != nil {
			if err := tx.SaveSession(ctx, session); err != nil {
				return err
			}
		}
		return tx.SaveUser(ctx, user)
	})
	if err != nil {
		return domain.AnswerResult{}, err
	}

	if completed != nil {
		s.handOff(ctx, *completed)
	}
	return result, nil
}

// CompleteSession finalizes a fully answered session. Calling it again returns
// the stored result without touching any counter.
func (s *QuizService) CompleteSession(ctx context.Context, userID, sessionID string) (domain.SessionResult, error) {
	var (
		result    domain.SessionResult
		completed *domain.QuizSession
	)
	err := s.store.RunInTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		session, err := tx.Session(ctx, sessionID)
		if err != nil {
			return err
		}
		switch session.Status {
		case domain.SessionCompleted:
			result = storedResult(session)
			return nil
		case domain.SessionAbandoned:
			return domain.ErrInvalidState
		}
		if !session.FullyAnswered() {
			return domain.ErrIncompleteSession
		}

		user, err := tx.User(ctx)
		if err != nil {
			return err
		}
		result = s.finalize(&session, &user, s.now())
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}
		if err := tx.SaveUser(ctx, user); err != nil {
			return err
		}
		completed = &session
		return nil
	})
	if err != nil {
		return domain.SessionResult{}, err
	}

	if completed != nil {
		s.handOff(ctx, *completed)
	}
	return result, nil
}

// AbandonStale retires sessions that have been idle longer than StaleAfter.
func (s *QuizService) AbandonStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	ids, err := s.store.AbandonStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		s.logger.Info("abandoned stale quiz sessions", "count", len(ids), "cutoff", cutoff)
	}
	return len(ids), nil
}

// Leaderboard exposes the aggregator to the transport layer.
func (s *QuizService) Leaderboard() *Leaderboard {
	return s.leaderboard
}

func (s *QuizService) ownedSession(ctx context.Context, userID, sessionID string) (domain.QuizSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if session.UserID != userID {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *QuizService) drawQuestions(ctx context.Context, count int) ([]string, error) {
	questions, err := s.questions.RandomQuestions(ctx, count)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for _, q := range questions {
		if _, dup := seen[q.ID]; dup {
			continue
		}
		seen[q.ID] = struct{}{}
		ids = append(ids, q.ID)
		if len(ids) == count {
			break
		}
	}
	if len(ids) < count {
		return nil, fmt.Errorf("%w: requested %d, got %d", domain.ErrNotEnoughQuestions, count, len(ids))
	}
	return ids, nil
}

// rollDay zeroes the daily figures when the user's last session was not today.
// The daily streak follows the consecutive-days reading: it survives a day
// boundary only if yesterday was played.
func (s *QuizService) rollDay(user domain.User, today domain.Day) domain.User {
	if user.LastSessionDate == today {
		return user
	}
	if user.LastSessionDate != s.calendar.Previous(today) {
		user.DailyStreak = 0
	}
	user.DailyScore = 0
	user.LastSessionDate = today
	return user
}

// finalize freezes the session result. A session finished after the day
// boundary counts for the completion day, the same day the limit check uses,
// so the user's daily figures move to that day carrying only this session's score.
func (s *QuizService) finalize(session *domain.QuizSession, user *domain.User, now time.Time) domain.SessionResult {
	if completedOn := s.calendar.DayOf(now); user.LastSessionDate != completedOn {
		user.LastSessionDate = completedOn
		user.DailyScore = session.Score
	}
	user.LastCompletedAt = &now

	elapsed := int(now.Sub(session.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	res := domain.SessionResult{
		SessionID:        session.ID,
		ScoreEarned:      session.Score,
		CorrectAnswers:   session.CorrectAnswers(),
		TotalQuestions:   session.TotalQuestions(),
		TotalTimeSeconds: elapsed,
		StreakAchieved:   session.MaxStreak,
		DailyScore:       user.DailyScore,
		DailyStreak:      user.DailyStreak,
		CompletedAt:      now,
	}
	session.Status = domain.SessionCompleted
	session.CompletedAt = &now
	session.LastActivityAt = now
	session.Result = &res
	return res
}

func (s *QuizService) handOff(ctx context.Context, session domain.QuizSession) {
	s.logger.Info("quiz session completed",
		"user_id", session.UserID, "session_id", session.ID, "score", session.Score)
	if s.leaderboard == nil || session.Result == nil {
		return
	}
	completedOn := s.calendar.DayOf(session.Result.CompletedAt)
	s.leaderboard.OnSessionCompleted(ctx, session.UserID, completedOn, session.Result.ScoreEarned, session.Result.DailyStreak)
}

// storedResult returns the frozen result, rebuilding it from the session for
// rows completed before results were persisted.
func storedResult(session domain.QuizSession) domain.SessionResult {
	if session.Result != nil {
		return *session.Result
	}
	res := domain.SessionResult{
		SessionID:      session.ID,
		ScoreEarned:    session.Score,
		CorrectAnswers: session.CorrectAnswers(),
		TotalQuestions: session.TotalQuestions(),
		StreakAchieved: session.MaxStreak,
	}
	if session.CompletedAt != nil {
		res.CompletedAt = *session.CompletedAt
		res.TotalTimeSeconds = int(session.CompletedAt.Sub(session.StartedAt).Seconds())
	}
	return res
}
