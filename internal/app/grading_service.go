package app

import (
	"context"
	"log"
	"time"

	"quiz-api/internal/domain"
)

// ResultRecordedKey is the routing key of published result events.
const ResultRecordedKey = "quiz.result.recorded"

// QuizStrategy resolves how many answers a submission of one quiz type must carry.
type QuizStrategy interface {
	ExpectedCount(ctx context.Context, filter domain.QuestionFilter) (int, error)
}

type randomStrategy struct {
	questions QuestionRepository
	size      int
}

// A random quiz samples size questions, or the whole catalog when it is smaller.
func (s randomStrategy) ExpectedCount(ctx context.Context, _ domain.QuestionFilter) (int, error) {
	total, err := s.questions.Count(ctx, domain.QuestionFilter{})
	if err != nil {
		return 0, err
	}
	if total < s.size {
		return total, nil
	}
	return s.size, nil
}

type allStrategy struct {
	questions QuestionRepository
}

func (s allStrategy) ExpectedCount(ctx context.Context, _ domain.QuestionFilter) (int, error) {
	return s.questions.Count(ctx, domain.QuestionFilter{})
}

type filteredStrategy struct {
	questions QuestionRepository
}

func (s filteredStrategy) ExpectedCount(ctx context.Context, filter domain.QuestionFilter) (int, error) {
	if filter.Empty() {
		return 0, domain.ErrFilterRequired
	}
	return s.questions.Count(ctx, filter)
}

// DefaultStrategies wires one strategy per quiz type.
func DefaultStrategies(questions QuestionRepository, randomSize int) map[domain.QuizType]QuizStrategy {
	return map[domain.QuizType]QuizStrategy{
		domain.QuizRandom:   randomStrategy{questions: questions, size: randomSize},
		domain.QuizAll:      allStrategy{questions: questions},
		domain.QuizFiltered: filteredStrategy{questions: questions},
	}
}

// Submission is the grading input.
type Submission struct {
	QuizType domain.QuizType
	Filter   domain.QuestionFilter
	Answers  []domain.AnswerSubmission
	// TimeTaken is reported by the client in seconds and is not re-verified.
	TimeTaken int
}

// Outcome is the grading result returned to the client.
type Outcome struct {
	Attempt           domain.Attempt
	ResultID          string
	AnsweredQuestions int
	AttemptNumber     int
	AttemptsRemaining *int
}

// GradingService grades submissions and records them through an attempt policy.
type GradingService struct {
	strategies map[domain.QuizType]QuizStrategy
	keys       AnswerKeyStore
	policy     AttemptPolicy
	feed       *ResultFeed
	publisher  EventPublisher
	now        func() time.Time
}

func NewGradingService(strategies map[domain.QuizType]QuizStrategy, keys AnswerKeyStore, policy AttemptPolicy, feed *ResultFeed, publisher EventPublisher) *GradingService {
	return NewGradingServiceWithClock(strategies, keys, policy, feed, publisher, time.Now)
}

// NewGradingServiceWithClock is test-only for deterministic timestamps.
func NewGradingServiceWithClock(strategies map[domain.QuizType]QuizStrategy, keys AnswerKeyStore, policy AttemptPolicy, feed *ResultFeed, publisher EventPublisher, now func() time.Time) *GradingService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &GradingService{
		strategies: strategies,
		keys:       keys,
		policy:     policy,
		feed:       feed,
		publisher:  publisher,
		now:        now,
	}
}

// Submit grades and records one submission. Nothing is stored unless every
// check passes.
func (s *GradingService) Submit(ctx context.Context, user domain.User, sub Submission) (Outcome, error) {
	strategy, ok := s.strategies[sub.QuizType]
	if !ok {
		return Outcome{}, domain.ErrInvalidQuizType
	}
	expected, err := strategy.ExpectedCount(ctx, sub.Filter)
	if err != nil {
		return Outcome{}, err
	}
	if len(sub.Answers) != expected {
		return Outcome{}, domain.ErrAnswerCountMismatch
	}
	ids, err := questionIDs(sub.Answers)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.policy.Check(ctx, user, sub.QuizType); err != nil {
		return Outcome{}, err
	}

	keys, err := s.keys.AnswerKeys(ctx, ids)
	if err != nil {
		return Outcome{}, err
	}
	for _, id := range ids {
		if _, ok := keys[id]; !ok {
			return Outcome{}, domain.ErrQuestionNotFound
		}
	}

	graded, score := Grade(sub.Answers, keys)
	attempt := domain.Attempt{
		QuizType:        sub.QuizType,
		Answers:         graded,
		Score:           score,
		TotalQuestions:  len(graded),
		PercentageScore: Percentage(score, len(graded)),
		TimeTaken:       sub.TimeTaken,
		CreatedAt:       s.now().UTC(),
	}
	if sub.QuizType == domain.QuizFiltered {
		attempt.Course = sub.Filter.Course
		attempt.Topic = sub.Filter.Topic
	}

	rec, err := s.policy.Record(ctx, user, attempt)
	if err != nil {
		return Outcome{}, err
	}

	s.announce(ctx, user, attempt, rec)

	return Outcome{
		Attempt:           attempt,
		ResultID:          rec.ResultID,
		AnsweredQuestions: answeredCount(sub.Answers),
		AttemptNumber:     rec.AttemptNumber,
		AttemptsRemaining: rec.AttemptsRemaining,
	}, nil
}

func (s *GradingService) announce(ctx context.Context, user domain.User, a domain.Attempt, rec Recorded) {
	ev := domain.ResultEvent{
		UserID:          user.ID,
		Username:        user.Username,
		QuizType:        a.QuizType,
		Score:           a.Score,
		TotalQuestions:  a.TotalQuestions,
		PercentageScore: a.PercentageScore,
		AttemptNumber:   rec.AttemptNumber,
		RecordedAt:      a.CreatedAt,
	}
	if s.feed != nil {
		s.feed.Broadcast(ev)
	}
	if err := s.publisher.Publish(ctx, ResultRecordedKey, ev); err != nil {
		log.Printf("publish result event for user %s: %v", user.ID, err)
	}
}

// Grade compares every selection with its answer key. It is a pure function
// of its inputs; a selection without a key or equal to domain.NoSelection is
// graded incorrect.
func Grade(answers []domain.AnswerSubmission, keys map[string]int) ([]domain.GradedAnswer, int) {
	graded := make([]domain.GradedAnswer, 0, len(answers))
	score := 0
	for _, a := range answers {
		correct, known := keys[a.QuestionID]
		ok := known && a.Selected != domain.NoSelection && a.Selected == correct
		if ok {
			score++
		}
		if !known {
			correct = domain.NoSelection
		}
		graded = append(graded, domain.GradedAnswer{
			QuestionID:    a.QuestionID,
			Selected:      a.Selected,
			CorrectAnswer: correct,
			IsCorrect:     ok,
		})
	}
	return graded, score
}

// Percentage returns 100*score/total, or 0 for an empty quiz.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(score) / float64(total)
}

func questionIDs(answers []domain.AnswerSubmission) ([]string, error) {
	seen := make(map[string]struct{}, len(answers))
	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		if _, dup := seen[a.QuestionID]; dup {
			return nil, domain.ErrDuplicateAnswer
		}
		seen[a.QuestionID] = struct{}{}
		ids = append(ids, a.QuestionID)
	}
	return ids, nil
}

func answeredCount(answers []domain.AnswerSubmission) int {
	n := 0
	for _, a := range answers {
		if a.Selected != domain.NoSelection {
			n++
		}
	}
	return n
}
