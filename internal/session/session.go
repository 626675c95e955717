package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quiz-api/internal/domain"
)

var (
	ErrCompleted         = errors.New("quiz already completed")
	ErrWrongStep         = errors.New("action not allowed at this step")
	ErrSubmitInProgress  = errors.New("submission already in progress")
	ErrUnknownQuestion   = errors.New("question is not part of this quiz")
	ErrInvalidOption     = errors.New("option out of range")
	ErrNoQuestionsServed = errors.New("no questions were served")
)

// Backend fetches the question set and grades a submission.
type Backend interface {
	Questions(ctx context.Context) ([]domain.PublicQuestion, error)
	Submit(ctx context.Context, answers []domain.AnswerSubmission, timeTaken int) (Score, error)
}

// Session is the client quiz state machine:
// info -> quiz -> results -> completed.
type Session struct {
	mu         sync.Mutex
	store      Store
	backend    Backend
	duration   time.Duration
	now        func() time.Time
	interval   time.Duration
	snap       Snapshot
	submitting bool
}

type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTickInterval sets how often Run ticks; the countdown still moves one
// second per tick.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// New loads the persisted state and reconciles it once.
func New(store Store, backend Backend, duration time.Duration, opts ...Option) (*Session, error) {
	s := &Session{
		store:    store,
		backend:  backend,
		duration: duration,
		now:      time.Now,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	completed, err := store.Completed()
	if err != nil {
		return nil, err
	}
	snap, found, err := store.Load()
	if err != nil {
		return nil, err
	}
	s.snap = Restore(snap, found, completed, s.now(), duration)
	// A results snapshot means the backend accepted the attempt, even if the
	// completion flag was never written.
	if s.snap.Step == StepResults {
		if err := store.MarkCompleted(); err != nil {
			return nil, err
		}
	}
	if s.snap.Step != StepCompleted {
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Step returns the current step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Step
}

// Start is the explicit consent that moves info to quiz.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	step := s.snap.Step
	s.mu.Unlock()
	if step == StepCompleted {
		return ErrCompleted
	}
	if step != StepInfo {
		return ErrWrongStep
	}

	qs, err := s.backend.Questions(ctx)
	if err != nil {
		return fmt.Errorf("fetch questions: %w", err)
	}
	if len(qs) == 0 {
		return ErrNoQuestionsServed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Step != StepInfo {
		return ErrWrongStep
	}
	s.snap = Snapshot{
		Step:             StepQuiz,
		Questions:        qs,
		Answers:          map[string]int{},
		RemainingSeconds: int(s.duration / time.Second),
	}
	return s.saveLocked()
}

// Answer records the selected option for a question.
func (s *Session) Answer(questionID string, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	if option < 0 || option >= domain.OptionCount {
		return ErrInvalidOption
	}
	if !s.hasQuestionLocked(questionID) {
		return ErrUnknownQuestion
	}
	s.snap.Answers[questionID] = option
	return s.saveLocked()
}

// Next moves to the following question; it stops at the last one.
func (s *Session) Next() error {
	return s.move(1)
}

// Prev moves to the previous question; it stops at the first one.
func (s *Session) Prev() error {
	return s.move(-1)
}

func (s *Session) move(delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	next := s.snap.Current + delta
	if next < 0 || next >= len(s.snap.Questions) {
		return nil
	}
	s.snap.Current = next
	return s.saveLocked()
}

// Tick advances the countdown by one second and submits when it reaches zero.
// It reports whether this tick triggered the submission.
func (s *Session) Tick(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.snap.Step != StepQuiz || s.submitting {
		s.mu.Unlock()
		return false, nil
	}
	if s.snap.RemainingSeconds > 0 {
		s.snap.RemainingSeconds--
	}
	expired := s.snap.RemainingSeconds == 0
	if err := s.saveLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	if !expired {
		return false, nil
	}
	_, err := s.Submit(ctx)
	if errors.Is(err, ErrSubmitInProgress) {
		return false, nil
	}
	return true, err
}

// Submit sends every question once, unanswered ones as domain.NoSelection.
// A second call while a submission is in flight fails with
// ErrSubmitInProgress; after success it returns the stored score. Completion
// is recorded only after the backend accepted the attempt.
func (s *Session) Submit(ctx context.Context) (Score, error) {
	s.mu.Lock()
	switch {
	case s.snap.Step == StepResults && s.snap.LastScore != nil:
		score := *s.snap.LastScore
		s.mu.Unlock()
		return score, nil
	case s.snap.Step != StepQuiz:
		s.mu.Unlock()
		return Score{}, ErrWrongStep
	case s.submitting:
		s.mu.Unlock()
		return Score{}, ErrSubmitInProgress
	}
	s.submitting = true
	answers := make([]domain.AnswerSubmission, 0, len(s.snap.Questions))
	for _, q := range s.snap.Questions {
		selected, ok := s.snap.Answers[q.ID]
		if !ok {
			selected = domain.NoSelection
		}
		answers = append(answers, domain.AnswerSubmission{QuestionID: q.ID, Selected: selected})
	}
	timeTaken := int(s.duration/time.Second) - s.snap.RemainingSeconds
	if timeTaken < 0 {
		timeTaken = 0
	}
	s.mu.Unlock()

	score, err := s.backend.Submit(ctx, answers, timeTaken)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		return Score{}, err
	}
	s.snap.Submitted = true
	s.snap.Step = StepResults
	s.snap.LastScore = &score
	if err := s.saveLocked(); err != nil {
		return score, err
	}
	return score, s.store.MarkCompleted()
}

// Run ticks until the session leaves the quiz step or ctx is done. onTick,
// if set, sees every state after a tick.
func (s *Session) Run(ctx context.Context, onTick func(Snapshot)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if s.Step() != StepQuiz {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			submitted, err := s.Tick(ctx)
			if onTick != nil {
				onTick(s.Snapshot())
			}
			if err != nil {
				return err
			}
			if submitted {
				return nil
			}
		}
	}
}

// Finish leaves the results screen. The completion flag is written again
// before the session snapshot is dropped.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Step != StepResults {
		return ErrWrongStep
	}
	if err := s.store.MarkCompleted(); err != nil {
		return err
	}
	if err := s.store.Clear(); err != nil {
		return err
	}
	s.snap = Snapshot{Step: StepCompleted, LastScore: s.snap.LastScore, SavedAt: s.now()}
	return nil
}

// LeaveGuard returns a warning when leaving now would abandon an unsubmitted quiz.
func (s *Session) LeaveGuard() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Step != StepQuiz || s.snap.Submitted {
		return "", false
	}
	answered := len(s.snap.Answers)
	return fmt.Sprintf("quiz in progress (%d/%d answered, %ds left); leaving now abandons it", answered, len(s.snap.Questions), s.snap.RemainingSeconds), true
}

func (s *Session) editableLocked() error {
	if s.snap.Step != StepQuiz {
		return ErrWrongStep
	}
	if s.submitting {
		return ErrSubmitInProgress
	}
	return nil
}

func (s *Session) hasQuestionLocked(id string) bool {
	for _, q := range s.snap.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) saveLocked() error {
	s.snap.SavedAt = s.now()
	return s.store.Save(s.snap.clone())
}
