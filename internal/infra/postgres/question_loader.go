package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// QuestionLoader reads question JSONB from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

// RandomQuestions draws count distinct questions uniformly at random.
func (l *QuestionLoader) RandomQuestions(ctx context.Context, count int) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM questions ORDER BY random() LIMIT $1`, count)
	if err != nil {
		return nil, fmt.Errorf("draw questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0, count)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q, err := decodeQuestion(raw)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("draw questions: %w", err)
	}
	if len(questions) < count {
		return nil, fmt.Errorf("%w: requested %d, bank holds %d", domain.ErrNotEnoughQuestions, count, len(questions))
	}
	return questions, nil
}

func (l *QuestionLoader) Question(ctx context.Context, questionID string) (domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM questions WHERE id=$1`, questionID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, domain.ErrQuestionNotFound
		}
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return decodeQuestion(raw)
}

// UpsertQuestions validates and stores questions in a single batch.
func (l *QuestionLoader) UpsertQuestions(ctx context.Context, questions []domain.Question) error {
	batch := &pgx.Batch{}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal question %s: %w", q.ID, err)
		}
		batch.Queue(`INSERT INTO questions (id, topic_id, difficulty, data)
			VALUES ($1, NULLIF($2, ''), $3, $4::jsonb)
			ON CONFLICT (id) DO UPDATE
			SET topic_id = EXCLUDED.topic_id, difficulty = EXCLUDED.difficulty, data = EXCLUDED.data, updated_at = now()`,
			q.ID, q.TopicID, string(q.Difficulty), string(data))
	}

	results := l.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range questions {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert question: %w", err)
		}
	}
	return nil
}

// Count reports how many questions the bank holds.
func (l *QuestionLoader) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, `SELECT count(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func decodeQuestion(raw []byte) (domain.Question, error) {
	var q domain.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal question: %w", err)
	}
	return q, nil
}
