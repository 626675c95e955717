package app

import (
	"context"

	"quiz-api/internal/domain"
)

// UserRepository stores credentials. Username and email are unique.
type UserRepository interface {
	// Create fails with domain.ErrUserExists on a duplicate username or email.
	Create(ctx context.Context, user domain.User) (domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// QuestionRepository stores the question catalog. Question text is unique.
type QuestionRepository interface {
	Create(ctx context.Context, q domain.Question) (domain.Question, error)
	Update(ctx context.Context, q domain.Question) (domain.Question, error)
	FindByID(ctx context.Context, id string) (domain.Question, error)
	// FindByIDs returns the questions that exist; unknown ids are skipped.
	FindByIDs(ctx context.Context, ids []string) ([]domain.Question, error)
	// List returns all questions, or those whose topic is one of topics.
	List(ctx context.Context, topics []string) ([]domain.Question, error)
	Count(ctx context.Context, filter domain.QuestionFilter) (int, error)
	Search(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
	// Sample returns up to n distinct questions chosen uniformly at random.
	Sample(ctx context.Context, n int) ([]domain.Question, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// ResultRepository keeps one result per (user, quiz type).
type ResultRepository interface {
	// Insert writes r only if no result exists for (r.UserID, r.QuizType);
	// otherwise it fails with domain.ErrAlreadyAttempted and stores nothing.
	Insert(ctx context.Context, r domain.Result) (domain.Result, error)
	// Upsert replaces the result for (r.UserID, r.QuizType) or creates it.
	Upsert(ctx context.Context, r domain.Result) (domain.Result, error)
	// Find fails with domain.ErrResultsNotFound when absent.
	Find(ctx context.Context, userID string, quizType domain.QuizType) (domain.Result, error)
	FindByUser(ctx context.Context, userID string) ([]domain.Result, error)
	List(ctx context.Context, page domain.Page) ([]domain.Result, int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// AttemptLogRepository keeps one append-only attempt log per user.
type AttemptLogRepository interface {
	// Append adds a to the user's log only while fewer than limit attempts
	// fall inside window. The check and the write are one atomic step.
	// It returns the updated log, or domain.ErrDailyLimitReached.
	Append(ctx context.Context, userID string, a domain.Attempt, window domain.Window, limit int) (domain.AttemptLog, error)
	// FindByUser fails with domain.ErrResultsNotFound when the user has no log.
	FindByUser(ctx context.Context, userID string) (domain.AttemptLog, error)
	List(ctx context.Context, page domain.Page) ([]domain.AttemptLog, int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// AnswerKeyLoader resolves questions for the answer-key cache.
type AnswerKeyLoader interface {
	FindByIDs(ctx context.Context, ids []string) ([]domain.Question, error)
}

// AnswerKeyStore resolves correct-answer indexes for grading.
type AnswerKeyStore interface {
	// AnswerKeys maps each known id to its correct index; unknown ids are absent.
	AnswerKeys(ctx context.Context, ids []string) (map[string]int, error)
	Invalidate(ctx context.Context, ids ...string) error
	Purge(ctx context.Context) error
}

// EventPublisher ships domain events to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
