package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/app"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/daily"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/infra/memory"
)

type testServer struct {
	*httptest.Server
	auth *Authenticator
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	questions := make([]domain.Question, 6)
	for i := range questions {
		questions[i] = domain.Question{
			ID:         fmt.Sprintf("q%d", i+1),
			Title:      fmt.Sprintf("Question %d", i+1),
			Difficulty: domain.DifficultyMedium,
			Options: []domain.Option{
				{ID: "a", Title: "A"},
				{ID: "b", Title: "B", Correct: true},
			},
		}
	}
	bank, err := memory.NewStaticQuestionBank(questions)
	require.NoError(t, err)

	calendar := daily.MustCalendar("UTC")
	store := memory.NewStore()
	board := app.NewLeaderboard(store, memory.NewLeaderboardCache(), calendar, app.LeaderboardConfig{
		Limit:    10,
		CacheTTL: time.Minute,
	})
	svc := app.NewQuizService(store, memory.NewQuestionRepository(bank, time.Minute), board, app.ServiceConfig{
		Calendar:             calendar,
		DefaultQuestionCount: 3,
		MaxQuestionCount:     6,
	})
	auth := NewAuthenticator(secret, svc, nil)

	srv := httptest.NewServer(NewRouter(svc, auth, nil))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, auth: auth}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
		req.Header.Set("X-User-Name", "Player "+user)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// playSession starts a session and answers every question correctly.
func (s *testServer) playSession(t *testing.T, user string, count int) string {
	t.Helper()
	var started startSessionResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/quiz/start-session", user,
		map[string]int{"question_count": count}, &started))

	question := started.Question
	for i := 0; i < count; i++ {
		var res domain.AnswerResult
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/quiz/session/answer", user, submitAnswerRequest{
			SessionID:        started.SessionID,
			QuestionID:       question.ID,
			SelectedOptionID: "b",
		}, &res))
		require.True(t, res.IsCorrect)
		if i < count-1 {
			require.Equal(t, http.StatusOK, s.do(t, http.MethodGet,
				"/v1/quiz/session/"+started.SessionID+"/question", user, nil, &question))
		}
	}
	return started.SessionID
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, "")

	var status app.StatusView
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/v1/quiz/session/status", "u1", nil, &status))
	assert.True(t, status.CanStart)
	assert.False(t, status.HasCompletedToday)

	var started startSessionResponse
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/v1/quiz/start-session", "u1", nil, &started))
	assert.Equal(t, 3, started.TotalQuestions)
	assert.Equal(t, 1, started.Question.QuestionNumber)
	assert.Len(t, started.Question.Options, 2)

	var conflict errorResponse
	require.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/v1/quiz/start-session", "u1", nil, &conflict))
	assert.Equal(t, "active_session_exists", conflict.Error)
	assert.Equal(t, started.SessionID, conflict.ActiveSessionID)

	var incomplete errorResponse
	require.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost,
		"/v1/quiz/session/"+started.SessionID+"/complete", "u1", nil, &incomplete))
	assert.Equal(t, "incomplete_session", incomplete.Error)

	var mismatch errorResponse
	require.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/v1/quiz/session/answer", "u1", submitAnswerRequest{
		SessionID:        started.SessionID,
		QuestionID:       "not-the-current-one",
		SelectedOptionID: "b",
	}, &mismatch))
	assert.Equal(t, "question_mismatch", mismatch.Error)

	question := started.Question
	for i := 0; i < 3; i++ {
		var res domain.AnswerResult
		require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/v1/quiz/session/answer", "u1", submitAnswerRequest{
			SessionID:        started.SessionID,
			QuestionID:       question.ID,
			SelectedOptionID: "b",
		}, &res))
		assert.Equal(t, "b", res.CorrectOptionID)
		assert.Equal(t, i+1, res.Streak)
		if i < 2 {
			require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet,
				"/v1/quiz/session/"+started.SessionID+"/question", "u1", nil, &question))
			assert.Equal(t, i+2, question.QuestionNumber)
		}
	}

	var result domain.SessionResult
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost,
		"/v1/quiz/session/"+started.SessionID+"/complete", "u1", nil, &result))
	assert.Equal(t, 3, result.CorrectAnswers)
	assert.Equal(t, 3, result.StreakAchieved)
	assert.Equal(t, 20+22+24, result.ScoreEarned)

	var again domain.SessionResult
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost,
		"/v1/quiz/session/"+started.SessionID+"/complete", "u1", nil, &again))
	assert.Equal(t, result.ScoreEarned, again.ScoreEarned)

	var limit errorResponse
	require.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/v1/quiz/start-session", "u1", nil, &limit))
	assert.Equal(t, "daily_limit_reached", limit.Error)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/v1/quiz/session/status", "u1", nil, &status))
	assert.True(t, status.HasCompletedToday)
	assert.False(t, status.CanStart)
	require.NotNil(t, status.TodayResult)
	assert.Equal(t, result.ScoreEarned, status.TodayResult.ScoreEarned)

	var board domain.Leaderboard
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/v1/quiz/leaderboard/daily", "u2", nil, &board))
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "u1", board.Entries[0].UserRef)
	assert.Equal(t, 1, board.Entries[0].Rank)
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t, "")

	var bad errorResponse
	require.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/v1/quiz/start-session", "u1",
		map[string]int{"question_count": 7}, &bad))
	assert.Equal(t, "invalid_question_count", bad.Error)

	require.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/v1/quiz/start-session", "u1",
		map[string]int{"question_count": -1}, &bad))
	assert.Equal(t, "bad_request", bad.Error)

	require.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/v1/quiz/session/answer", "u1",
		map[string]string{"session_id": "s"}, &bad))
	assert.Contains(t, bad.Message, "questionid")

	require.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/v1/quiz/session/status", "", nil, nil))
}

func TestForeignSessionIsNotFound(t *testing.T) {
	srv := newTestServer(t, "")

	var started startSessionResponse
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/v1/quiz/start-session", "u1", nil, &started))

	var notFound errorResponse
	require.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet,
		"/v1/quiz/session/"+started.SessionID+"/question", "u2", nil, &notFound))
	assert.Equal(t, "not_found", notFound.Error)

	require.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/v1/quiz/session/answer", "u2", submitAnswerRequest{
		SessionID:        started.SessionID,
		QuestionID:       started.Question.ID,
		SelectedOptionID: "b",
	}, &notFound))
}

func TestBearerTokenAuthentication(t *testing.T) {
	srv := newTestServer(t, "test-secret")

	token, err := srv.auth.Sign(domain.UserRef{ID: "u9", DisplayName: "Nine"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	call := func(header string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/quiz/session/status", nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		req.Header.Set("X-User-ID", "spoofed")
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, call("Bearer "+token))
	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+token+"x"))

	other := NewAuthenticator("other-secret", nil, nil)
	forged, err := other.Sign(domain.UserRef{ID: "u9"}, jwt.RegisteredClaims{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+forged))

	claims, err := srv.auth.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u9", claims.Subject)
	assert.Equal(t, "Nine", claims.Name)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, "")
	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
