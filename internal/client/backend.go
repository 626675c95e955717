package client

import (
	"context"

	"quiz-api/internal/domain"
	"quiz-api/internal/session"
)

// QuizBackend serves one quiz type to a session.
type QuizBackend struct {
	client   *Client
	quizType domain.QuizType
	filter   domain.QuestionFilter
}

func NewQuizBackend(c *Client, quizType domain.QuizType, filter domain.QuestionFilter) *QuizBackend {
	return &QuizBackend{client: c, quizType: quizType, filter: filter}
}

func (b *QuizBackend) Questions(ctx context.Context) ([]domain.PublicQuestion, error) {
	return b.client.Questions(ctx, b.quizType, b.filter)
}

func (b *QuizBackend) Submit(ctx context.Context, answers []domain.AnswerSubmission, timeTaken int) (session.Score, error) {
	res, err := b.client.Submit(ctx, b.quizType, b.filter, answers, timeTaken)
	if err != nil {
		return session.Score{}, err
	}
	return session.Score{
		Score:             res.Score,
		TotalQuestions:    res.TotalQuestions,
		PercentageScore:   res.PercentageScore,
		AttemptsRemaining: res.AttemptsRemaining,
	}, nil
}
