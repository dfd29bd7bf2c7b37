package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

type userModel struct {
	bun.BaseModel `bun:"table:quiz_users,alias:u"`

	ID              string     `bun:"id,pk"`
	DisplayName     string     `bun:"display_name,notnull"`
	DailyScore      int        `bun:"daily_score,notnull"`
	DailyStreak     int        `bun:"daily_streak,notnull"`
	TotalScore      int        `bun:"total_score,notnull"`
	LastSessionDate string     `bun:"last_session_date,nullzero"`
	LastCompletedAt *time.Time `bun:"last_completed_at"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (m *userModel) toDomain() domain.User {
	return domain.User{
		ID:              m.ID,
		DisplayName:     m.DisplayName,
		DailyScore:      m.DailyScore,
		DailyStreak:     m.DailyStreak,
		TotalScore:      m.TotalScore,
		LastSessionDate: domain.Day(m.LastSessionDate),
		LastCompletedAt: m.LastCompletedAt,
	}
}

func userFromDomain(u domain.User) *userModel {
	return &userModel{
		ID:              u.ID,
		DisplayName:     u.DisplayName,
		DailyScore:      u.DailyScore,
		DailyStreak:     u.DailyStreak,
		TotalScore:      u.TotalScore,
		LastSessionDate: string(u.LastSessionDate),
		LastCompletedAt: u.LastCompletedAt,
	}
}

type sessionModel struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:s"`

	ID                   string                `bun:"id,pk"`
	UserID               string                `bun:"user_id,notnull"`
	Day                  string                `bun:"session_day,notnull"`
	Status               domain.SessionStatus  `bun:"status,notnull"`
	QuestionIDs          []string              `bun:"question_ids,array"`
	CurrentQuestionIndex int                   `bun:"current_question_index,notnull"`
	Score                int                   `bun:"score,notnull"`
	Streak               int                   `bun:"streak,notnull"`
	MaxStreak            int                   `bun:"max_streak,notnull"`
	StartedAt            time.Time             `bun:"started_at,notnull"`
	CompletedAt          *time.Time            `bun:"completed_at"`
	LastActivityAt       time.Time             `bun:"last_activity_at,notnull"`
	Result               *domain.SessionResult `bun:"result,type:jsonb"`

	Answers []*answerModel `bun:"rel:has-many,join:id=session_id"`
}

func (m *sessionModel) toDomain() domain.QuizSession {
	s := domain.QuizSession{
		ID:                   m.ID,
		UserID:               m.UserID,
		Day:                  domain.Day(m.Day),
		Status:               m.Status,
		QuestionIDs:          m.QuestionIDs,
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		Answers:              make([]domain.Answer, 0, len(m.Answers)),
		Score:                m.Score,
		Streak:               m.Streak,
		MaxStreak:            m.MaxStreak,
		StartedAt:            m.StartedAt,
		CompletedAt:          m.CompletedAt,
		LastActivityAt:       m.LastActivityAt,
		Result:               m.Result,
	}
	for _, a := range m.Answers {
		s.Answers = append(s.Answers, a.toDomain())
	}
	return s
}

func sessionFromDomain(s domain.QuizSession) *sessionModel {
	return &sessionModel{
		ID:                   s.ID,
		UserID:               s.UserID,
		Day:                  string(s.Day),
		Status:               s.Status,
		QuestionIDs:          s.QuestionIDs,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		Score:                s.Score,
		Streak:               s.Streak,
		MaxStreak:            s.MaxStreak,
		StartedAt:            s.StartedAt,
		CompletedAt:          s.CompletedAt,
		LastActivityAt:       s.LastActivityAt,
		Result:               s.Result,
	}
}

type answerModel struct {
	bun.BaseModel `bun:"table:quiz_answers,alias:a"`

	SessionID        string    `bun:"session_id,pk"`
	Position         int       `bun:"position,pk"`
	QuestionID       string    `bun:"question_id,notnull"`
	SelectedOptionID string    `bun:"selected_option_id,notnull"`
	IsCorrect        bool      `bun:"is_correct,notnull"`
	Points           int       `bun:"points,notnull"`
	StreakAfter      int       `bun:"streak_after,notnull"`
	AnsweredAt       time.Time `bun:"answered_at,notnull"`
}

func (m *answerModel) toDomain() domain.Answer {
	return domain.Answer{
		QuestionID:       m.QuestionID,
		SelectedOptionID: m.SelectedOptionID,
		IsCorrect:        m.IsCorrect,
		Points:           m.Points,
		StreakAfter:      m.StreakAfter,
		AnsweredAt:       m.AnsweredAt,
	}
}
