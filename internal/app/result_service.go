package app

import (
	"context"
	"errors"
	"log"

	"quiz-api/internal/domain"
)

// ResultService reads recorded results and performs administrative wipes.
type ResultService struct {
	policy    AttemptPolicy
	users     UserRepository
	questions *QuestionService
}

func NewResultService(policy AttemptPolicy, users UserRepository, questions *QuestionService) *ResultService {
	return &ResultService{policy: policy, users: users, questions: questions}
}

// ForUser returns the results of userID. Students may only read their own.
func (s *ResultService) ForUser(ctx context.Context, caller domain.User, userID string) ([]domain.Result, error) {
	if caller.ID != userID && !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.policy.ResultsFor(ctx, userID)
}

// ResultPage is one page of the admin results listing.
type ResultPage struct {
	Results []domain.Result
	Total   int64
	Page    domain.Page
}

// List pages over every stored result and attaches user details.
func (s *ResultService) List(ctx context.Context, page domain.Page) (ResultPage, error) {
	page = page.Normalize()
	results, total, err := s.policy.List(ctx, page)
	if err != nil {
		return ResultPage{}, err
	}

	users := make(map[string]*domain.UserSummary)
	for i := range results {
		id := results[i].UserID
		summary, seen := users[id]
		if !seen {
			u, err := s.users.FindByID(ctx, id)
			switch {
			case err == nil:
				summary = &domain.UserSummary{Username: u.Username, Email: u.Email}
			case errors.Is(err, domain.ErrUserNotFound):
				// Results outlive their users; no cascade.
			default:
				return ResultPage{}, err
			}
			users[id] = summary
		}
		results[i].UserDetails = summary
	}
	if results == nil {
		results = []domain.Result{}
	}
	return ResultPage{Results: results, Total: total, Page: page}, nil
}

// ClearSummary reports how many records a database wipe removed.
type ClearSummary struct {
	Questions int64 `json:"questions"`
	Users     int64 `json:"users"`
	Results   int64 `json:"results"`
}

// ClearDatabase wipes questions, users and results. It refuses to run without
// explicit agreement.
func (s *ResultService) ClearDatabase(ctx context.Context, agreed bool) (ClearSummary, error) {
	if !agreed {
		return ClearSummary{}, domain.ErrConfirmationRequired
	}
	var sum ClearSummary
	var err error
	if sum.Questions, err = s.questions.DeleteAll(ctx, true); err != nil {
		return sum, err
	}
	if sum.Results, err = s.policy.Purge(ctx); err != nil {
		return sum, err
	}
	if sum.Users, err = s.users.DeleteAll(ctx); err != nil {
		return sum, err
	}
	log.Printf("database cleared: %d questions, %d users, %d results", sum.Questions, sum.Users, sum.Results)
	return sum, nil
}
