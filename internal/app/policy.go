package app

import (
	"context"
	"errors"
	"time"

	"quiz-api/internal/domain"
)

// Recorded describes where a graded attempt was stored.
type Recorded struct {
	ResultID      string
	AttemptNumber int
	// AttemptsRemaining is nil when the policy has no cap.
	AttemptsRemaining *int
}

// AttemptPolicy decides whether a user may submit and persists accepted attempts.
type AttemptPolicy interface {
	// Check is an advisory fast-fail run before grading; Record is authoritative.
	Check(ctx context.Context, user domain.User, quizType domain.QuizType) error
	Record(ctx context.Context, user domain.User, a domain.Attempt) (Recorded, error)
	ResultsFor(ctx context.Context, userID string) ([]domain.Result, error)
	List(ctx context.Context, page domain.Page) ([]domain.Result, int64, error)
	Purge(ctx context.Context) (int64, error)
}

// SingleResultPolicy keeps one result per (user, quiz type). Users with retake
// permission overwrite it in place; everyone else is refused a second attempt.
type SingleResultPolicy struct {
	results ResultRepository
	now     func() time.Time
}

func NewSingleResultPolicy(results ResultRepository) *SingleResultPolicy {
	return &SingleResultPolicy{results: results, now: time.Now}
}

func (p *SingleResultPolicy) Check(ctx context.Context, user domain.User, quizType domain.QuizType) error {
	if user.AllowRetake {
		return nil
	}
	_, err := p.results.Find(ctx, user.ID, quizType)
	switch {
	case err == nil:
		return domain.ErrAlreadyAttempted
	case errors.Is(err, domain.ErrResultsNotFound):
		return nil
	default:
		return err
	}
}

func (p *SingleResultPolicy) Record(ctx context.Context, user domain.User, a domain.Attempt) (Recorded, error) {
	r := domain.Result{
		UserID:    user.ID,
		Attempt:   a,
		UpdatedAt: p.now().UTC(),
	}
	var (
		stored domain.Result
		err    error
	)
	if user.AllowRetake {
		stored, err = p.results.Upsert(ctx, r)
	} else {
		stored, err = p.results.Insert(ctx, r)
	}
	if err != nil {
		return Recorded{}, err
	}
	return Recorded{ResultID: stored.ID, AttemptNumber: 1}, nil
}

func (p *SingleResultPolicy) ResultsFor(ctx context.Context, userID string) ([]domain.Result, error) {
	rs, err := p.results.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, domain.ErrResultsNotFound
	}
	return rs, nil
}

func (p *SingleResultPolicy) List(ctx context.Context, page domain.Page) ([]domain.Result, int64, error) {
	return p.results.List(ctx, page.Normalize())
}

func (p *SingleResultPolicy) Purge(ctx context.Context) (int64, error) {
	return p.results.DeleteAll(ctx)
}

// DailyCapPolicy appends every attempt to the user's log and allows at most
// limit attempts per calendar day in loc.
type DailyCapPolicy struct {
	logs  AttemptLogRepository
	limit int
	loc   *time.Location
	now   func() time.Time
}

func NewDailyCapPolicy(logs AttemptLogRepository, limit int, loc *time.Location) *DailyCapPolicy {
	return NewDailyCapPolicyWithClock(logs, limit, loc, time.Now)
}

// NewDailyCapPolicyWithClock is test-only for deterministic day boundaries.
func NewDailyCapPolicyWithClock(logs AttemptLogRepository, limit int, loc *time.Location, now func() time.Time) *DailyCapPolicy {
	if loc == nil {
		loc = time.Local
	}
	return &DailyCapPolicy{logs: logs, limit: limit, loc: loc, now: now}
}

func (p *DailyCapPolicy) Check(ctx context.Context, user domain.User, _ domain.QuizType) error {
	log, err := p.logs.FindByUser(ctx, user.ID)
	if errors.Is(err, domain.ErrResultsNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if log.CountIn(domain.DayWindow(p.now(), p.loc)) >= p.limit {
		return domain.ErrDailyLimitReached
	}
	return nil
}

func (p *DailyCapPolicy) Record(ctx context.Context, user domain.User, a domain.Attempt) (Recorded, error) {
	window := domain.DayWindow(a.CreatedAt, p.loc)
	log, err := p.logs.Append(ctx, user.ID, a, window, p.limit)
	if err != nil {
		return Recorded{}, err
	}
	count := log.CountIn(window)
	remaining := p.limit - count
	if remaining < 0 {
		remaining = 0
	}
	results := log.Results()
	id := ""
	if len(results) > 0 {
		id = results[len(results)-1].ID
	}
	return Recorded{ResultID: id, AttemptNumber: count, AttemptsRemaining: &remaining}, nil
}

func (p *DailyCapPolicy) ResultsFor(ctx context.Context, userID string) ([]domain.Result, error) {
	log, err := p.logs.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	results := log.Results()
	if len(results) == 0 {
		return nil, domain.ErrResultsNotFound
	}
	return results, nil
}

// List pages over logs and flattens each log into its attempts. The total counts logs.
func (p *DailyCapPolicy) List(ctx context.Context, page domain.Page) ([]domain.Result, int64, error) {
	logs, total, err := p.logs.List(ctx, page.Normalize())
	if err != nil {
		return nil, 0, err
	}
	var out []domain.Result
	for _, l := range logs {
		out = append(out, l.Results()...)
	}
	return out, total, nil
}

func (p *DailyCapPolicy) Purge(ctx context.Context) (int64, error) {
	return p.logs.DeleteAll(ctx)
}
