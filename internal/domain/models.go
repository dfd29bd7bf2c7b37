package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Day is a civil date (YYYY-MM-DD) in the engine's reference timezone.
type Day string

const dayLayout = "2006-01-02"

// DayOf formats t as a Day in t's own location.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// Time parses the day as midnight in loc.
func (d Day) Time(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dayLayout, string(d), loc)
}

func (d Day) String() string { return string(d) }

// Difficulty grades a question. Ordering is easy < medium < hard.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Rank returns 1, 2 or 3 for valid difficulties and 0 otherwise.
func (d Difficulty) Rank() int {
	switch d {
	case DifficultyEasy:
		return 1
	case DifficultyMedium:
		return 2
	case DifficultyHard:
		return 3
	default:
		return 0
	}
}

func (d Difficulty) Valid() bool { return d.Rank() > 0 }

// Option is one possible answer. Correct must never reach a client before the
// question has been answered.
type Option struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	ImageURL string `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Correct  bool   `json:"correct" yaml:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID         string     `json:"id" yaml:"id"`
	TopicID    string     `json:"topic_id,omitempty" yaml:"topic_id,omitempty"`
	Title      string     `json:"title" yaml:"title"`
	ImageURL   string     `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Difficulty Difficulty `json:"difficulty" yaml:"difficulty"`
	Options    []Option   `json:"options" yaml:"options"`
}

const (
	MinOptions = 2
	MaxOptions = 5
)

// Validate checks the option count and that exactly one option is correct.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question id is empty")
	}
	if !q.Difficulty.Valid() {
		return fmt.Errorf("question %s: invalid difficulty %q", q.ID, q.Difficulty)
	}
	if n := len(q.Options); n < MinOptions || n > MaxOptions {
		return fmt.Errorf("question %s: expected %d-%d options, got %d", q.ID, MinOptions, MaxOptions, n)
	}
	correct := 0
	seen := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if _, dup := seen[opt.ID]; dup || opt.ID == "" {
			return fmt.Errorf("question %s: missing or duplicate option id %q", q.ID, opt.ID)
		}
		seen[opt.ID] = struct{}{}
		if opt.Correct {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("question %s: expected exactly one correct option, got %d", q.ID, correct)
	}
	return nil
}

// Option returns the option with the given id.
func (q Question) Option(optionID string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return Option{}, false
}

// CorrectOptionID returns the id of the correct option, or "" if none is flagged.
func (q Question) CorrectOptionID() string {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	return ""
}

// PublicOption is an option as shown before answering.
type PublicOption struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url,omitempty"`
}

// PublicQuestion is a question stripped of correctness flags plus progress info.
type PublicQuestion struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	ImageURL       string         `json:"image_url,omitempty"`
	Difficulty     Difficulty     `json:"difficulty"`
	Options        []PublicOption `json:"options"`
	QuestionNumber int            `json:"question_number"`
	TotalQuestions int            `json:"total_questions"`
}

// Public strips correctness. number is 1-based.
func (q Question) Public(number, total int) PublicQuestion {
	opts := make([]PublicOption, len(q.Options))
	for i, opt := range q.Options {
		opts[i] = PublicOption{ID: opt.ID, Title: opt.Title, ImageURL: opt.ImageURL}
	}
	return PublicQuestion{
		ID:             q.ID,
		Title:          q.Title,
		ImageURL:       q.ImageURL,
		Difficulty:     q.Difficulty,
		Options:        opts,
		QuestionNumber: number,
		TotalQuestions: total,
	}
}

// UserRef is the identity handed over by the auth collaborator.
type UserRef struct {
	ID          string
	DisplayName string
}

// User holds the per-user counters the engine owns.
type User struct {
	ID              string     `json:"id"`
	DisplayName     string     `json:"display_name"`
	DailyScore      int        `json:"daily_score"`
	DailyStreak     int        `json:"daily_streak"`
	TotalScore      int        `json:"total_score"`
	LastSessionDate Day        `json:"last_session_date,omitempty"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// SessionStatus is the persisted phase of a quiz session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

func (s SessionStatus) String() string { return string(s) }

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionAbandoned:
		return true
	default:
		return false
	}
}

// Scan implements sql.Scanner.
func (s *SessionStatus) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*s = SessionStatus(v)
	case []byte:
		*s = SessionStatus(string(v))
	default:
		return fmt.Errorf("unsupported type for SessionStatus: %T", value)
	}
	if !s.Valid() {
		return fmt.Errorf("invalid SessionStatus: %q", *s)
	}
	return nil
}

// Value implements driver.Valuer.
func (s SessionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid SessionStatus: %q", s)
	}
	return string(s), nil
}

// Answer is one recorded submission. IsCorrect is computed server-side.
type Answer struct {
	QuestionID       string    `json:"question_id"`
	SelectedOptionID string    `json:"selected_option_id"`
	IsCorrect        bool      `json:"is_correct"`
	Points           int       `json:"points"`
	StreakAfter      int       `json:"streak_after"`
	AnsweredAt       time.Time `json:"answered_at"`
}

// SessionResult is the frozen outcome of a completed session.
type SessionResult struct {
	SessionID        string    `json:"session_id"`
	ScoreEarned      int       `json:"score_earned"`
	CorrectAnswers   int       `json:"correct_answers"`
	TotalQuestions   int       `json:"total_questions"`
	TotalTimeSeconds int       `json:"total_time_seconds"`
	StreakAchieved   int       `json:"streak_achieved"`
	DailyScore       int       `json:"daily_score"`
	DailyStreak      int       `json:"daily_streak"`
	CompletedAt      time.Time `json:"completed_at"`
}

// QuizSession is one user's daily attempt.
type QuizSession struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"user_id"`
	Day                  Day            `json:"day"`
	Status               SessionStatus  `json:"status"`
	QuestionIDs          []string       `json:"question_ids"`
	CurrentQuestionIndex int            `json:"current_question_index"`
	Answers              []Answer       `json:"answers"`
	Score                int            `json:"score"`
	Streak               int            `json:"streak"`
	MaxStreak            int            `json:"max_streak"`
	StartedAt            time.Time      `json:"started_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	LastActivityAt       time.Time      `json:"last_activity_at"`
	Result               *SessionResult `json:"result,omitempty"`
}

// TotalQuestions is the fixed length of the question sequence.
func (s QuizSession) TotalQuestions() int { return len(s.QuestionIDs) }

// FullyAnswered reports whether every question has an answer.
func (s QuizSession) FullyAnswered() bool {
	return s.CurrentQuestionIndex == len(s.QuestionIDs)
}

// CurrentQuestionID returns the id at the current index, if any remain.
func (s QuizSession) CurrentQuestionID() (string, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.QuestionIDs) {
		return "", false
	}
	return s.QuestionIDs[s.CurrentQuestionIndex], true
}

// CorrectAnswers counts correct answers recorded so far.
func (s QuizSession) CorrectAnswers() int {
	n := 0
	for _, a := range s.Answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// Validate checks the structural invariants of a session.
func (s QuizSession) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("session %s: invalid status %q", s.ID, s.Status)
	}
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex > len(s.QuestionIDs) {
		return fmt.Errorf("session %s: index %d out of range [0,%d]", s.ID, s.CurrentQuestionIndex, len(s.QuestionIDs))
	}
	if len(s.Answers) != s.CurrentQuestionIndex {
		return fmt.Errorf("session %s: %d answers recorded at index %d", s.ID, len(s.Answers), s.CurrentQuestionIndex)
	}
	if s.Status == SessionCompleted && !s.FullyAnswered() {
		return fmt.Errorf("session %s: completed with %d of %d answers", s.ID, s.CurrentQuestionIndex, len(s.QuestionIDs))
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (s QuizSession) Clone() QuizSession {
	out := s
	out.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	out.Answers = append([]Answer(nil), s.Answers...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	return out
}

// AnswerSubmission models the answer signal from clients.
type AnswerSubmission struct {
	SessionID        string
	QuestionID       string
	SelectedOptionID string
}

// AnswerResult summarizes the outcome of one submission. CorrectOptionID is
// revealed only here.
type AnswerResult struct {
	IsCorrect       bool           `json:"is_correct"`
	CorrectOptionID string         `json:"correct_option_id"`
	Points          int            `json:"points"`
	Streak          int            `json:"streak"`
	Score           int            `json:"score"`
	DailyScore      int            `json:"daily_score"`
	DailyStreak     int            `json:"daily_streak"`
	SessionComplete bool           `json:"session_complete"`
	QuestionNumber  int            `json:"question_number"`
	Result          *SessionResult `json:"result,omitempty"`
}

// LeaderboardEntry is one ranked user for a day.
type LeaderboardEntry struct {
	UserRef     string    `json:"user_ref"`
	DisplayName string    `json:"display_name"`
	DailyScore  int       `json:"daily_score"`
	DailyStreak int       `json:"daily_streak"`
	Rank        int       `json:"rank"`
	CompletedAt time.Time `json:"completed_at"`
}

// Leaderboard captures the ordered daily standings.
type Leaderboard struct {
	Day       Day                `json:"day"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updated_at"`
}
