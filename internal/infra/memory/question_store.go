package memory

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quiz-api/internal/domain"

	"github.com/google/uuid"
)

// QuestionStore is an in-memory implementation of app.QuestionRepository.
// Listings keep insertion order.
type QuestionStore struct {
	mu        sync.RWMutex
	order     []string
	questions map[string]domain.Question
	rnd       *rand.Rand
}

func NewQuestionStore() *QuestionStore {
	return &QuestionStore{
		questions: make(map[string]domain.Question),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *QuestionStore) Create(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.textTakenLocked(q.Text, "") {
		return domain.Question{}, domain.ErrQuestionExists
	}
	q.ID = uuid.NewString()
	q.Options = append([]string(nil), q.Options...)
	s.questions[q.ID] = q
	s.order = append(s.order, q.ID)
	return q, nil
}

func (s *QuestionStore) Update(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if s.textTakenLocked(q.Text, q.ID) {
		return domain.Question{}, domain.ErrQuestionExists
	}
	q.Options = append([]string(nil), q.Options...)
	s.questions[q.ID] = q
	return q, nil
}

func (s *QuestionStore) FindByID(_ context.Context, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.questions[id]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (s *QuestionStore) FindByIDs(_ context.Context, ids []string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if q, ok := s.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *QuestionStore) List(_ context.Context, topics []string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		want[t] = struct{}{}
	}
	out := make([]domain.Question, 0, len(s.order))
	for _, id := range s.order {
		q := s.questions[id]
		if len(want) > 0 {
			if _, ok := want[q.Topic]; !ok {
				continue
			}
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *QuestionStore) Count(_ context.Context, filter domain.QuestionFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, q := range s.questions {
		if filter.Matches(q) {
			n++
		}
	}
	return n, nil
}

func (s *QuestionStore) Search(_ context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Question
	for _, id := range s.order {
		if q := s.questions[id]; filter.Matches(q) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *QuestionStore) Sample(_ context.Context, n int) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.order) {
		n = len(s.order)
	}
	if n <= 0 {
		return nil, nil
	}
	perm := s.rnd.Perm(len(s.order))
	out := make([]domain.Question, 0, n)
	for _, i := range perm[:n] {
		out = append(out, s.questions[s.order[i]])
	}
	return out, nil
}

func (s *QuestionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *QuestionStore) DeleteAll(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.questions))
	s.questions = make(map[string]domain.Question)
	s.order = nil
	return n, nil
}

func (s *QuestionStore) textTakenLocked(text, exceptID string) bool {
	for id, q := range s.questions {
		if id != exceptID && strings.TrimSpace(q.Text) == strings.TrimSpace(text) {
			return true
		}
	}
	return false
}
