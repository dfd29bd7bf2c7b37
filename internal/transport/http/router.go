package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/app"
)

// NewRouter mounts the quiz API and the leaderboard websocket feed.
func NewRouter(service *app.QuizService, auth *Authenticator, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(service, logger)
	ws := NewWSHandler(service.Leaderboard(), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/v1/quiz", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/session/status", h.Status)
		r.Post("/start-session", h.StartSession)
		r.Get("/session/{sessionID}/question", h.CurrentQuestion)
		r.Post("/session/answer", h.SubmitAnswer)
		r.Post("/session/{sessionID}/complete", h.CompleteSession)
		r.Get("/leaderboard/daily", h.DailyLeaderboard)
		r.Get("/leaderboard/ws", ws.ServeWS)
	})
	return r
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
