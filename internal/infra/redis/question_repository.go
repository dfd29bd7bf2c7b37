package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/app"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// QuestionRepository caches questions in Redis and falls back to the source bank on a miss.
// Each question is stored as JSON: SET quiz:question:{questionID} {json} EX ttl
type QuestionRepository struct {
	client *redis.Client
	source app.QuestionBank
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionRepository(client *redis.Client, source app.QuestionBank, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RandomQuestions always draws from the source so selection stays uniform,
// then writes the drawn questions through to Redis.
func (r *QuestionRepository) RandomQuestions(ctx context.Context, count int) ([]domain.Question, error) {
	questions, err := r.source.RandomQuestions(ctx, count)
	if err != nil {
		return nil, err
	}
	pipe := r.client.Pipeline()
	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			return nil, err
		}
		pipe.Set(ctx, r.key(q.ID), data, r.ttlWithJitter())
	}
	// best-effort warmup; a failed write only costs a later miss
	_, _ = pipe.Exec(ctx)
	return questions, nil
}

func (r *QuestionRepository) Question(ctx context.Context, questionID string) (domain.Question, error) {
	if q, ok := r.cached(ctx, questionID); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do(questionID, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if q, ok := r.cached(ctx, questionID); ok {
			return q, nil
		}

		q, err := r.source.Question(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		if data, err := json.Marshal(q); err == nil {
			_ = r.client.Set(ctx, r.key(questionID), data, r.ttlWithJitter()).Err()
		}
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (r *QuestionRepository) cached(ctx context.Context, questionID string) (domain.Question, bool) {
	data, err := r.client.Get(ctx, r.key(questionID)).Bytes()
	if err != nil {
		// redis.Nil or an unreachable cache both fall through to the source
		return domain.Question{}, false
	}
	var q domain.Question
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.Question{}, false
	}
	return q, true
}

func (r *QuestionRepository) key(questionID string) string {
	return "quiz:question:" + questionID
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
