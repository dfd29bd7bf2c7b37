package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the parent of every unknown session/question/option/user error.
	ErrNotFound = errors.New("not found")
	// ErrSessionNotFound is returned for unknown sessions and sessions owned by someone else.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrQuestionNotFound indicates a question id the bank does not know.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrOptionNotFound indicates the selected option does not belong to the question.
	ErrOptionNotFound = fmt.Errorf("option %w", ErrNotFound)
	// ErrUserNotFound indicates the user row has not been provisioned.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrDailyLimitReached means today's session was already completed.
	ErrDailyLimitReached = errors.New("daily quiz already completed, come back tomorrow")
	// ErrActiveSessionExists means an active session must be resumed instead.
	ErrActiveSessionExists = errors.New("an active quiz session already exists")
	// ErrInvalidState is returned for actions against a session in the wrong phase.
	ErrInvalidState = errors.New("quiz session is not in a valid state for this action")
	// ErrQuestionMismatch is returned for out-of-sequence or replayed answers.
	ErrQuestionMismatch = errors.New("question does not match the current question of the session")
	// ErrIncompleteSession is returned when completing before every question is answered.
	ErrIncompleteSession = errors.New("quiz session has unanswered questions")
	// ErrInvalidQuestionCount is returned for a requested count outside the allowed range.
	ErrInvalidQuestionCount = errors.New("invalid question count")
	// ErrNotEnoughQuestions means the bank cannot supply the requested count.
	ErrNotEnoughQuestions = errors.New("not enough questions available")
)

// ActiveSessionError carries the id of the session the caller should resume.
type ActiveSessionError struct {
	SessionID string
}

func (e *ActiveSessionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrActiveSessionExists, e.SessionID)
}

func (e *ActiveSessionError) Is(target error) bool {
	return target == ErrActiveSessionExists
}
