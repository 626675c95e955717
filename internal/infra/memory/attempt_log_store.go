package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-api/internal/domain"

	"github.com/google/uuid"
)

// AttemptLogStore is an in-memory implementation of app.AttemptLogRepository.
// The mutex makes the cap check and the append one step.
type AttemptLogStore struct {
	mu   sync.Mutex
	logs map[string]*domain.AttemptLog
}

func NewAttemptLogStore() *AttemptLogStore {
	return &AttemptLogStore{logs: make(map[string]*domain.AttemptLog)}
}

func (s *AttemptLogStore) Append(_ context.Context, userID string, a domain.Attempt, window domain.Window, limit int) (domain.AttemptLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[userID]
	if !ok {
		l = &domain.AttemptLog{
			ID:        uuid.NewString(),
			UserID:    userID,
			CreatedAt: a.CreatedAt,
		}
		s.logs[userID] = l
	}
	if l.CountIn(window) >= limit {
		return domain.AttemptLog{}, domain.ErrDailyLimitReached
	}
	l.Attempts = append(l.Attempts, a)
	l.Version++
	l.UpdatedAt = a.CreatedAt
	return copyLog(*l), nil
}

func (s *AttemptLogStore) FindByUser(_ context.Context, userID string) (domain.AttemptLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[userID]
	if !ok {
		return domain.AttemptLog{}, domain.ErrResultsNotFound
	}
	return copyLog(*l), nil
}

func (s *AttemptLogStore) List(_ context.Context, page domain.Page) ([]domain.AttemptLog, int64, error) {
	s.mu.Lock()
	all := make([]domain.AttemptLog, 0, len(s.logs))
	for _, l := range s.logs {
		all = append(all, copyLog(*l))
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, page), int64(len(all)), nil
}

func (s *AttemptLogStore) DeleteAll(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.logs))
	s.logs = make(map[string]*domain.AttemptLog)
	return n, nil
}

func copyLog(l domain.AttemptLog) domain.AttemptLog {
	l.Attempts = append([]domain.Attempt(nil), l.Attempts...)
	return l
}
