package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

type errorResponse struct {
	Error           string `json:"error"`
	Message         string `json:"message"`
	ActiveSessionID string `json:"active_session_id,omitempty"`
}

// errorCode maps engine errors to an HTTP status and a stable machine code.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrDailyLimitReached):
		return http.StatusConflict, "daily_limit_reached"
	case errors.Is(err, domain.ErrActiveSessionExists):
		return http.StatusConflict, "active_session_exists"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrQuestionMismatch):
		return http.StatusConflict, "question_mismatch"
	case errors.Is(err, domain.ErrIncompleteSession):
		return http.StatusConflict, "incomplete_session"
	case errors.Is(err, domain.ErrInvalidQuestionCount):
		return http.StatusBadRequest, "invalid_question_count"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrNotEnoughQuestions):
		return http.StatusServiceUnavailable, "not_enough_questions"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := errorCode(err)
	body := errorResponse{Error: code, Message: err.Error()}

	var active *domain.ActiveSessionError
	if errors.As(err, &active) {
		body.ActiveSessionID = active.SessionID
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		body.Message = "internal server error"
	}
	respondJSON(w, status, body)
}

func respondBadRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
