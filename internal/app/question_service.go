package app

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quiz-api/internal/domain"
)

// QuestionService manages the question catalog.
type QuestionService struct {
	questions  QuestionRepository
	keys       AnswerKeyStore
	randomSize int
	now        func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionService(questions QuestionRepository, keys AnswerKeyStore, randomSize int) *QuestionService {
	return NewQuestionServiceWithRand(questions, keys, randomSize, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewQuestionServiceWithRand is test-only for deterministic shuffles.
func NewQuestionServiceWithRand(questions QuestionRepository, keys AnswerKeyStore, randomSize int, rnd *rand.Rand) *QuestionService {
	return &QuestionService{
		questions:  questions,
		keys:       keys,
		randomSize: randomSize,
		now:        time.Now,
		rnd:        rnd,
	}
}

// RandomSize is the fixed sample size of a random quiz.
func (s *QuestionService) RandomSize() int {
	return s.randomSize
}

// Create stores a new question authored by createdBy.
func (s *QuestionService) Create(ctx context.Context, q domain.Question, createdBy string) (domain.Question, error) {
	q = trimQuestion(q)
	if err := checkQuestion(q); err != nil {
		return domain.Question{}, err
	}
	now := s.now().UTC()
	q.ID = ""
	q.CreatedBy = createdBy
	q.CreatedAt = now
	q.UpdatedAt = now
	return s.questions.Create(ctx, q)
}

// Update replaces the content of question id.
func (s *QuestionService) Update(ctx context.Context, id string, q domain.Question) (domain.Question, error) {
	q = trimQuestion(q)
	if err := checkQuestion(q); err != nil {
		return domain.Question{}, err
	}
	existing, err := s.questions.FindByID(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	existing.Text = q.Text
	existing.Options = q.Options
	existing.CorrectIndex = q.CorrectIndex
	existing.Course = q.Course
	existing.Topic = q.Topic
	existing.UpdatedAt = s.now().UTC()

	updated, err := s.questions.Update(ctx, existing)
	if err != nil {
		return domain.Question{}, err
	}
	s.invalidate(ctx, id)
	return updated, nil
}

// List returns the whole catalog, or the questions whose topic is one of topics.
func (s *QuestionService) List(ctx context.Context, topics []string) ([]domain.Question, error) {
	clean := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	qs, err := s.questions.List(ctx, clean)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, domain.ErrNoQuestions
	}
	return qs, nil
}

// Random returns a uniform sample of RandomSize questions in shuffled order.
func (s *QuestionService) Random(ctx context.Context) ([]domain.Question, error) {
	qs, err := s.questions.Sample(ctx, s.randomSize)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, domain.ErrNoQuestions
	}
	s.shuffle(qs)
	return qs, nil
}

// Search filters the catalog by course and/or topic.
func (s *QuestionService) Search(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	if filter.Empty() {
		return nil, domain.ErrFilterRequired
	}
	qs, err := s.questions.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, domain.ErrNoQuestions
	}
	return qs, nil
}

// Delete removes one question.
func (s *QuestionService) Delete(ctx context.Context, id string) error {
	if err := s.questions.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// DeleteAll wipes the catalog. It refuses to run without explicit agreement.
func (s *QuestionService) DeleteAll(ctx context.Context, agreed bool) (int64, error) {
	if !agreed {
		return 0, domain.ErrConfirmationRequired
	}
	n, err := s.questions.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	if s.keys != nil {
		if err := s.keys.Purge(ctx); err != nil {
			log.Printf("purge answer keys: %v", err)
		}
	}
	return n, nil
}

func (s *QuestionService) invalidate(ctx context.Context, id string) {
	if s.keys == nil {
		return
	}
	if err := s.keys.Invalidate(ctx, id); err != nil {
		log.Printf("invalidate answer key %s: %v", id, err)
	}
}

// shuffle is a Fisher-Yates permutation.
func (s *QuestionService) shuffle(qs []domain.Question) {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	for i := len(qs) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}

func trimQuestion(q domain.Question) domain.Question {
	q.Text = strings.TrimSpace(q.Text)
	q.Course = strings.TrimSpace(q.Course)
	q.Topic = strings.TrimSpace(q.Topic)
	options := make([]string, len(q.Options))
	for i, o := range q.Options {
		options[i] = strings.TrimSpace(o)
	}
	q.Options = options
	return q
}

// checkQuestion enforces the four-option invariant independently of request validation.
func checkQuestion(q domain.Question) error {
	if q.Text == "" || q.Course == "" || q.Topic == "" {
		return domain.ErrInvalidQuestion
	}
	if len(q.Options) != domain.OptionCount {
		return domain.ErrInvalidQuestion
	}
	for _, o := range q.Options {
		if o == "" {
			return domain.ErrInvalidQuestion
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= domain.OptionCount {
		return domain.ErrInvalidQuestion
	}
	return nil
}
