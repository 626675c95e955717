package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-api/internal/domain"

	"github.com/google/uuid"
)

type resultKey struct {
	userID   string
	quizType domain.QuizType
}

// ResultStore is an in-memory implementation of app.ResultRepository.
type ResultStore struct {
	mu      sync.RWMutex
	results map[resultKey]domain.Result
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[resultKey]domain.Result)}
}

func (s *ResultStore) Insert(_ context.Context, r domain.Result) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey{r.UserID, r.QuizType}
	if _, ok := s.results[key]; ok {
		return domain.Result{}, domain.ErrAlreadyAttempted
	}
	r.ID = uuid.NewString()
	s.results[key] = r
	return r, nil
}

func (s *ResultStore) Upsert(_ context.Context, r domain.Result) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey{r.UserID, r.QuizType}
	if existing, ok := s.results[key]; ok {
		r.ID = existing.ID
	} else {
		r.ID = uuid.NewString()
	}
	s.results[key] = r
	return r, nil
}

func (s *ResultStore) Find(_ context.Context, userID string, quizType domain.QuizType) (domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.results[resultKey{userID, quizType}]; ok {
		return r, nil
	}
	return domain.Result{}, domain.ErrResultsNotFound
}

func (s *ResultStore) FindByUser(_ context.Context, userID string) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Result
	for key, r := range s.results {
		if key.userID == userID {
			out = append(out, r)
		}
	}
	sortResults(out)
	return out, nil
}

func (s *ResultStore) List(_ context.Context, page domain.Page) ([]domain.Result, int64, error) {
	s.mu.RLock()
	all := make([]domain.Result, 0, len(s.results))
	for _, r := range s.results {
		all = append(all, r)
	}
	s.mu.RUnlock()

	sortResults(all)
	total := int64(len(all))
	return paginate(all, page), total, nil
}

func (s *ResultStore) DeleteAll(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.results))
	s.results = make(map[resultKey]domain.Result)
	return n, nil
}

// sortResults orders newest first, ties broken by id.
func sortResults(rs []domain.Result) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func paginate[T any](items []T, page domain.Page) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
