package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/app"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// QuestionRepository caches questions by id with TTL so that serving and
// grading the same question does not hit the backing bank repeatedly.
type QuestionRepository struct {
	source app.QuestionBank
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(source app.QuestionBank, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestion),
	}
}

// RandomQuestions draws from the source and warms the cache with the result.
func (r *QuestionRepository) RandomQuestions(ctx context.Context, count int) ([]domain.Question, error) {
	questions, err := r.source.RandomQuestions(ctx, count)
	if err != nil {
		return nil, err
	}
	now := r.clock()
	r.mu.Lock()
	for _, q := range questions {
		r.cache[q.ID] = cachedQuestion{question: q, expiresAt: now.Add(r.ttlWithJitter())}
	}
	r.mu.Unlock()
	return questions, nil
}

func (r *QuestionRepository) Question(ctx context.Context, questionID string) (domain.Question, error) {
	if q, ok := r.cached(questionID); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do(questionID, func() (interface{}, error) {
		if q, ok := r.cached(questionID); ok {
			return q, nil
		}

		q, err := r.source.Question(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}

		r.mu.Lock()
		r.cache[questionID] = cachedQuestion{
			question:  q,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (r *QuestionRepository) cached(questionID string) (domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[questionID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Question{}, false
	}
	return entry.question, true
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionBank is a question bank backed by a fixed slice (useful for tests/demos).
type StaticQuestionBank struct {
	questions []domain.Question
	byID      map[string]domain.Question

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewStaticQuestionBank validates every question and rejects duplicate ids.
func NewStaticQuestionBank(questions []domain.Question) (*StaticQuestionBank, error) {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		byID[q.ID] = q
	}
	return &StaticQuestionBank{
		questions: append([]domain.Question(nil), questions...),
		byID:      byID,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// RandomQuestions returns count distinct questions in random order.
func (b *StaticQuestionBank) RandomQuestions(_ context.Context, count int) ([]domain.Question, error) {
	if count > len(b.questions) {
		return nil, fmt.Errorf("%w: requested %d, bank holds %d", domain.ErrNotEnoughQuestions, count, len(b.questions))
	}
	b.mu.Lock()
	perm := b.rnd.Perm(len(b.questions))
	b.mu.Unlock()

	out := make([]domain.Question, count)
	for i := 0; i < count; i++ {
		out[i] = b.questions[perm[i]]
	}
	return out, nil
}

func (b *StaticQuestionBank) Question(_ context.Context, questionID string) (domain.Question, error) {
	if q, ok := b.byID[questionID]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// Len reports the bank size.
func (b *StaticQuestionBank) Len() int { return len(b.questions) }
