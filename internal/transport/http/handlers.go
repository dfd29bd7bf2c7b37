package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/app"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// Handler exposes the quiz engine over JSON.
type Handler struct {
	service  *app.QuizService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *app.QuizService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, validate: validator.New(), logger: logger}
}

type startSessionRequest struct {
	QuestionCount int `json:"question_count" validate:"omitempty,min=1"`
}

type startSessionResponse struct {
	SessionID            string                `json:"session_id"`
	Day                  domain.Day            `json:"day"`
	Status               domain.SessionStatus  `json:"status"`
	TotalQuestions       int                   `json:"total_questions"`
	CurrentQuestionIndex int                   `json:"current_question_index"`
	StartedAt            string                `json:"started_at"`
	Question             domain.PublicQuestion `json:"question"`
}

type submitAnswerRequest struct {
	SessionID        string `json:"session_id" validate:"required"`
	QuestionID       string `json:"question_id" validate:"required"`
	SelectedOptionID string `json:"selected_option_id" validate:"required"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	view, err := h.service.Status(r.Context(), user.ID)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	var req startSessionRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	session, err := h.service.StartSession(r.Context(), user.ID, req.QuestionCount)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	question, err := h.service.CurrentQuestion(r.Context(), user.ID, session.ID)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, startSessionResponse{
		SessionID:            session.ID,
		Day:                  session.Day,
		Status:               session.Status,
		TotalQuestions:       session.TotalQuestions(),
		CurrentQuestionIndex: session.CurrentQuestionIndex,
		StartedAt:            session.StartedAt.UTC().Format(time.RFC3339),
		Question:             question,
	})
}

func (h *Handler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	question, err := h.service.CurrentQuestion(r.Context(), user.ID, chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, question)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	var req submitAnswerRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	result, err := h.service.SubmitAnswer(r.Context(), user.ID, domain.AnswerSubmission{
		SessionID:        req.SessionID,
		QuestionID:       req.QuestionID,
		SelectedOptionID: req.SelectedOptionID,
	})
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	result, err := h.service.CompleteSession(r.Context(), user.ID, chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) DailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.Leaderboard().Daily(r.Context())
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}

// decode reads a JSON body into dst and validates it. allowEmpty accepts a
// missing body as the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			respondBadRequest(w, "invalid JSON body")
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		respondBadRequest(w, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
