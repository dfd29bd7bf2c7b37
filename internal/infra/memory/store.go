package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/app"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// Store is an in-memory implementation of app.Store. A per-user mutex stands
// in for the row lock the Postgres store takes; writes are staged and applied
// only when the transaction function succeeds.
type Store struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	sessions map[string]domain.QuizSession
	byUser   map[string][]string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		sessions: make(map[string]domain.QuizSession),
		byUser:   make(map[string][]string),
		locks:    make(map[string]*sync.Mutex),
	}
}

var _ app.Store = (*Store)(nil)

func (s *Store) EnsureUser(_ context.Context, ref domain.UserRef) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[ref.ID]
	if !ok {
		u = domain.User{ID: ref.ID}
	}
	if ref.DisplayName != "" {
		u.DisplayName = ref.DisplayName
	}
	s.users[ref.ID] = u
	return cloneUser(u), nil
}

func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *Store) RecentSessions(_ context.Context, userID string, since time.Time) ([]domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(userID, since), nil
}

func (s *Store) recentLocked(userID string, since time.Time) []domain.QuizSession {
	var out []domain.QuizSession
	for _, id := range s.byUser[userID] {
		session := s.sessions[id]
		if isRecent(session, since) {
			out = append(out, session.Clone())
		}
	}
	return out
}

func isRecent(session domain.QuizSession, since time.Time) bool {
	switch session.Status {
	case domain.SessionActive:
		return true
	case domain.SessionCompleted:
		return session.CompletedAt != nil && !session.CompletedAt.Before(since)
	default:
		return false
	}
}

func (s *Store) ListDailyStandings(_ context.Context, day domain.Day, from, to time.Time) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.User
	for _, u := range s.users {
		if u.LastSessionDate != day || u.LastCompletedAt == nil {
			continue
		}
		if u.LastCompletedAt.Before(from) || !u.LastCompletedAt.Before(to) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AbandonStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	type candidate struct{ userID, sessionID string }
	var candidates []candidate

	s.mu.RLock()
	for id, session := range s.sessions {
		if session.Status == domain.SessionActive && session.LastActivityAt.Before(cutoff) {
			candidates = append(candidates, candidate{userID: session.UserID, sessionID: id})
		}
	}
	s.mu.RUnlock()

	var abandoned []string
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return abandoned, err
		}
		lock := s.userLock(c.userID)
		lock.Lock()
		s.mu.Lock()
		session := s.sessions[c.sessionID]
		// Re-check: an answer may have landed since the scan.
		if session.Status == domain.SessionActive && session.LastActivityAt.Before(cutoff) {
			session.Status = domain.SessionAbandoned
			s.sessions[c.sessionID] = session
			abandoned = append(abandoned, c.sessionID)
		}
		s.mu.Unlock()
		lock.Unlock()
	}
	sort.Strings(abandoned)
	return abandoned, nil
}

// RunInTx serializes all transactions of one user.
func (s *Store) RunInTx(ctx context.Context, userID string, fn func(ctx context.Context, tx app.Tx) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &storeTx{store: s, userID: userID, sessions: make(map[string]domain.QuizSession)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

func (s *Store) commit(tx *storeTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.user != nil {
		s.users[tx.userID] = *tx.user
	}
	for id, session := range tx.sessions {
		if _, exists := s.sessions[id]; !exists {
			s.byUser[session.UserID] = append(s.byUser[session.UserID], id)
		}
		s.sessions[id] = session
	}
}

type storeTx struct {
	store    *Store
	userID   string
	user     *domain.User
	sessions map[string]domain.QuizSession
}

func (t *storeTx) User(_ context.Context) (domain.User, error) {
	if t.user != nil {
		return cloneUser(*t.user), nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	u, ok := t.store.users[t.userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (t *storeTx) SaveUser(_ context.Context, user domain.User) error {
	user.ID = t.userID
	u := cloneUser(user)
	t.user = &u
	return nil
}

func (t *storeTx) RecentSessions(_ context.Context, since time.Time) ([]domain.QuizSession, error) {
	t.store.mu.RLock()
	out := t.store.recentLocked(t.userID, since)
	t.store.mu.RUnlock()

	for i := range out {
		if staged, ok := t.sessions[out[i].ID]; ok {
			out[i] = staged.Clone()
		}
	}
	for id, staged := range t.sessions {
		if t.committed(id) {
			continue
		}
		if isRecent(staged, since) {
			out = append(out, staged.Clone())
		}
	}
	return out, nil
}

func (t *storeTx) committed(sessionID string) bool {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.sessions[sessionID]
	return ok
}

func (t *storeTx) Session(_ context.Context, sessionID string) (domain.QuizSession, error) {
	if staged, ok := t.sessions[sessionID]; ok {
		return staged.Clone(), nil
	}
	t.store.mu.RLock()
	session, ok := t.store.sessions[sessionID]
	t.store.mu.RUnlock()
	if !ok || session.UserID != t.userID {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// CreateSession enforces the same uniqueness the Postgres indexes do: one
// active session per user and one non-abandoned session per user and day.
func (t *storeTx) CreateSession(ctx context.Context, session domain.QuizSession) error {
	if session.UserID != t.userID {
		return domain.ErrSessionNotFound
	}
	if err := session.Validate(); err != nil {
		return err
	}
	existing, err := t.allSessions(ctx)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == session.ID {
			return domain.ErrActiveSessionExists
		}
		if other.Status == domain.SessionActive && session.Status == domain.SessionActive {
			return &domain.ActiveSessionError{SessionID: other.ID}
		}
		if other.Day == session.Day && other.Status != domain.SessionAbandoned && session.Status != domain.SessionAbandoned {
			return domain.ErrActiveSessionExists
		}
	}
	t.sessions[session.ID] = session.Clone()
	return nil
}

func (t *storeTx) allSessions(_ context.Context) ([]domain.QuizSession, error) {
	t.store.mu.RLock()
	out := make([]domain.QuizSession, 0, len(t.store.byUser[t.userID])+len(t.sessions))
	for _, id := range t.store.byUser[t.userID] {
		if _, staged := t.sessions[id]; staged {
			continue
		}
		out = append(out, t.store.sessions[id])
	}
	t.store.mu.RUnlock()
	for _, staged := range t.sessions {
		out = append(out, staged)
	}
	return out, nil
}

func (t *storeTx) AppendAnswer(ctx context.Context, session domain.QuizSession, expectedIndex int) error {
	current, err := t.Session(ctx, session.ID)
	if err != nil {
		return err
	}
	if current.CurrentQuestionIndex != expectedIndex || len(session.Answers) != expectedIndex+1 {
		return domain.ErrQuestionMismatch
	}
	if err := session.Validate(); err != nil {
		return err
	}
	t.sessions[session.ID] = session.Clone()
	return nil
}

func (t *storeTx) SaveSession(ctx context.Context, session domain.QuizSession) error {
	if _, err := t.Session(ctx, session.ID); err != nil {
		return err
	}
	if err := session.Validate(); err != nil {
		return err
	}
	t.sessions[session.ID] = session.Clone()
	return nil
}

func cloneUser(u domain.User) domain.User {
	if u.LastCompletedAt != nil {
		ts := *u.LastCompletedAt
		u.LastCompletedAt = &ts
	}
	return u
}
