package cli

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/app"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/config"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/daily"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/infra/memory"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/infra/postgres"
	infraredis "github.com/jsureka/chemouflage-card-shop-sub000/internal/infra/redis"
	transport "github.com/jsureka/chemouflage-card-shop-sub000/internal/transport/http"
)

//go:embed sample_questions.yaml
var sampleQuestions []byte

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// engine is the wired service plus whatever needs closing on shutdown.
type engine struct {
	service  *app.QuizService
	calendar *daily.Calendar
	closers  []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// buildEngine selects Postgres or in-memory storage and Redis or in-process
// caches from cfg.
func buildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (*engine, error) {
	calendar, err := daily.NewCalendar(cfg.Quiz.Timezone)
	if err != nil {
		return nil, err
	}
	e := &engine{calendar: calendar}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		e.closers = append(e.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			e.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var (
		store app.Store
		bank  app.QuestionBank
	)
	if cfg.Postgres.URL != "" {
		db := postgres.Open(cfg.Postgres.URL)
		e.closers = append(e.closers, func() { _ = db.Close() })
		store = postgres.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		e.closers = append(e.closers, pool.Close)
		loader := postgres.NewQuestionLoader(pool)
		if n, err := loader.Count(ctx); err == nil && n == 0 {
			logger.Warn("question bank is empty; run the seed command")
		}
		bank = loader
	} else {
		questions, err := localQuestions(cfg)
		if err != nil {
			e.Close()
			return nil, err
		}
		static, err := memory.NewStaticQuestionBank(questions)
		if err != nil {
			e.Close()
			return nil, err
		}
		logger.Info("using in-memory storage", "questions", static.Len())
		store = memory.NewStore()
		bank = static
	}

	var (
		questions  app.QuestionBank
		boardCache app.LeaderboardCache
	)
	if redisClient != nil {
		questions = infraredis.NewQuestionRepository(redisClient, bank, questionCacheTTL(cfg, true))
		boardCache = infraredis.NewLeaderboardCache(redisClient)
	} else {
		questions = memory.NewQuestionRepository(bank, questionCacheTTL(cfg, false))
		boardCache = memory.NewLeaderboardCache()
	}

	leaderboard := app.NewLeaderboard(store, boardCache, calendar, app.LeaderboardConfig{
		Limit:    cfg.Leaderboard.Limit,
		CacheTTL: config.Duration(cfg.Leaderboard.CacheTTL, 30*time.Second),
		Logger:   logger,
	})
	e.service = app.NewQuizService(store, questions, leaderboard, app.ServiceConfig{
		Calendar:             calendar,
		Scoring:              cfg.ScoringConfig(),
		DefaultQuestionCount: cfg.Quiz.DefaultQuestionCount,
		MaxQuestionCount:     cfg.Quiz.MaxQuestionCount,
		StaleAfter:           config.Duration(cfg.Quiz.StaleAfter, 6*time.Hour),
		AutoComplete:         cfg.Quiz.AutoComplete,
		Logger:               logger,
	})
	return e, nil
}

// questionCacheTTL is redis.ttl for the shared Redis cache, falling back to
// quiz.ttl, and quiz.ttl for the in-process one.
func questionCacheTTL(cfg config.Config, shared bool) time.Duration {
	local := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	if shared {
		return config.Duration(cfg.Redis.TTL, local)
	}
	return local
}

func localQuestions(cfg config.Config) ([]domain.Question, error) {
	if cfg.Quiz.QuestionsFile != "" {
		return memory.LoadQuestionFile(cfg.Quiz.QuestionsFile)
	}
	return memory.ParseQuestions(sampleQuestions)
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	eng, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	runCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go eng.service.RunSweeper(runCtx, config.Duration(cfg.Quiz.SweepInterval, 5*time.Minute))

	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret, eng.service, logger)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret not set; trusting X-User-ID headers")
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(eng.service, auth, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", "addr", server.Addr, "timezone", eng.calendar.Location().String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
