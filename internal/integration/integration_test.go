package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/app"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/daily"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/infra/postgres"
	pgmigrations "github.com/jsureka/chemouflage-card-shop-sub000/internal/infra/postgres/migrations"
	infraredis "github.com/jsureka/chemouflage-card-shop-sub000/internal/infra/redis"
)

func TestDailySessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := postgres.NewQuestionLoader(pool)
	if err := loader.UpsertQuestions(ctx, sampleQuestions(5)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	db := postgres.Open(pgURL)
	defer db.Close()
	store := postgres.NewStore(db)

	calendar := daily.MustCalendar("UTC")
	board := app.NewLeaderboard(store, infraredis.NewLeaderboardCache(redisClient), calendar, app.LeaderboardConfig{
		Limit:    10,
		CacheTTL: time.Minute,
	})
	service := app.NewQuizService(store, infraredis.NewQuestionRepository(redisClient, loader, 5*time.Minute), board, app.ServiceConfig{
		Calendar:             calendar,
		DefaultQuestionCount: 3,
		MaxQuestionCount:     5,
	})

	for _, ref := range []domain.UserRef{{ID: "u1", DisplayName: "Alice"}, {ID: "u2", DisplayName: "Bob"}} {
		if _, err := service.EnsureUser(ctx, ref); err != nil {
			t.Fatalf("ensure user: %v", err)
		}
	}

	session, err := service.StartSession(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.StartSession(ctx, "u1", 3); !errors.Is(err, domain.ErrActiveSessionExists) {
		t.Fatalf("expected active session error, got %v", err)
	}

	for i := 0; i < 3; i++ {
		q, err := service.CurrentQuestion(ctx, "u1", session.ID)
		if err != nil {
			t.Fatalf("current question: %v", err)
		}
		res, err := service.SubmitAnswer(ctx, "u1", domain.AnswerSubmission{
			SessionID:        session.ID,
			QuestionID:       q.ID,
			SelectedOptionID: "b",
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if !res.IsCorrect || res.Streak != i+1 {
			t.Fatalf("answer %d: expected correct with streak %d, got %+v", i, i+1, res)
		}
		// Replaying the same question must be rejected by the sequence check.
		if _, err := service.SubmitAnswer(ctx, "u1", domain.AnswerSubmission{
			SessionID:        session.ID,
			QuestionID:       q.ID,
			SelectedOptionID: "b",
		}); err == nil {
			t.Fatalf("expected replay of %s to fail", q.ID)
		}
	}

	result, err := service.CompleteSession(ctx, "u1", session.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.CorrectAnswers != 3 || result.StreakAchieved != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	again, err := service.CompleteSession(ctx, "u1", session.ID)
	if err != nil || again.ScoreEarned != result.ScoreEarned {
		t.Fatalf("expected idempotent completion, got %+v err=%v", again, err)
	}

	if _, err := service.StartSession(ctx, "u1", 3); !errors.Is(err, domain.ErrDailyLimitReached) {
		t.Fatalf("expected daily limit, got %v", err)
	}

	lb, err := board.Daily(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserRef != "u1" || lb.Entries[0].DailyScore != result.ScoreEarned {
		t.Fatalf("unexpected leaderboard %+v", lb.Entries)
	}

	// Concurrent starts for one user race on the row lock and the partial
	// unique index; exactly one may win.
	var ok, rejected int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := service.StartSession(ctx, "u2", 2)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, domain.ErrActiveSessionExists):
				atomic.AddInt32(&rejected, 1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent start: %v", err)
	}
	if ok != 1 || rejected != 7 {
		t.Fatalf("expected 1 start and 7 rejections, got %d and %d", ok, rejected)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	db := postgres.Open(dsn)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuestions(n int) []domain.Question {
	difficulties := []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard}
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{
			ID:         fmt.Sprintf("it-q%d", i+1),
			Title:      fmt.Sprintf("Integration question %d", i+1),
			Difficulty: difficulties[i%len(difficulties)],
			Options: []domain.Option{
				{ID: "a", Title: "Wrong"},
				{ID: "b", Title: "Right", Correct: true},
				{ID: "c", Title: "Also wrong"},
			},
		}
	}
	return out
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
