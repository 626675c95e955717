package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quiz-api/internal/domain"
)

type fakeBackend struct {
	mu        sync.Mutex
	questions []domain.PublicQuestion
	calls     int
	got       []domain.AnswerSubmission
	timeTaken int
	err       error
	release   chan struct{}
}

func (b *fakeBackend) Questions(context.Context) ([]domain.PublicQuestion, error) {
	return b.questions, nil
}

func (b *fakeBackend) Submit(ctx context.Context, answers []domain.AnswerSubmission, timeTaken int) (Score, error) {
	b.mu.Lock()
	b.calls++
	b.got = answers
	b.timeTaken = timeTaken
	release, err := b.release, b.err
	b.mu.Unlock()
	if release != nil {
		<-release
	}
	if err != nil {
		return Score{}, err
	}
	correct := 0
	for _, a := range answers {
		if a.Selected == 0 {
			correct++
		}
	}
	return Score{Score: correct, TotalQuestions: len(answers), PercentageScore: 100 * float64(correct) / float64(len(answers))}, nil
}

func (b *fakeBackend) submitCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBackend(n int) *fakeBackend {
	b := &fakeBackend{}
	for i := 0; i < n; i++ {
		b.questions = append(b.questions, domain.PublicQuestion{
			ID:      string(rune('a' + i)),
			Text:    "question",
			Options: []string{"w", "x", "y", "z"},
		})
	}
	return b
}

func startSession(t *testing.T, store Store, backend *fakeBackend, duration time.Duration, clock *testClock) *Session {
	t.Helper()
	s, err := New(store, backend, duration, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if s.Step() != StepInfo {
		t.Fatalf("expected info step, got %s", s.Step())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestReloadResumesCountdown(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	backend := newBackend(3)

	s := startSession(t, store, backend, 20*time.Minute, clock)
	if err := s.Answer("b", 2); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}

	clock.Advance(8 * time.Minute)
	reloaded, err := New(store, backend, 20*time.Minute, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap := reloaded.Snapshot()
	if snap.Step != StepQuiz {
		t.Fatalf("expected quiz step after reload, got %s", snap.Step)
	}
	if snap.RemainingSeconds != 12*60 {
		t.Fatalf("expected 720s remaining, got %d", snap.RemainingSeconds)
	}
	if snap.Current != 1 || snap.Answers["b"] != 2 {
		t.Fatalf("progress lost on reload: %+v", snap)
	}
}

func TestTimerExpirySubmitsOnce(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Now()}
	backend := newBackend(2)
	s := startSession(t, NewMemoryStore(), backend, 3*time.Second, clock)

	for i := 0; i < 2; i++ {
		if submitted, err := s.Tick(ctx); err != nil || submitted {
			t.Fatalf("tick %d: submitted=%v err=%v", i, submitted, err)
		}
	}
	submitted, err := s.Tick(ctx)
	if err != nil || !submitted {
		t.Fatalf("expected expiry to submit, got submitted=%v err=%v", submitted, err)
	}
	if _, err := s.Tick(ctx); err != nil {
		t.Fatalf("tick after results: %v", err)
	}
	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("repeat submit: %v", err)
	}
	if backend.submitCalls() != 1 {
		t.Fatalf("expected exactly one submission, got %d", backend.submitCalls())
	}
	if backend.timeTaken != 3 {
		t.Fatalf("expected timeTaken 3, got %d", backend.timeTaken)
	}
	if s.Step() != StepResults {
		t.Fatalf("expected results step, got %s", s.Step())
	}
}

func TestConcurrentSubmitIsGuarded(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Now()}
	backend := newBackend(1)
	backend.release = make(chan struct{})
	s := startSession(t, NewMemoryStore(), backend, time.Minute, clock)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx)
		done <- err
	}()
	for backend.submitCalls() == 0 {
		time.Sleep(time.Millisecond)
	}
	if _, err := s.Submit(ctx); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("expected ErrSubmitInProgress, got %v", err)
	}
	if err := s.Answer("a", 1); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("answers must be frozen while submitting, got %v", err)
	}
	close(backend.release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if backend.submitCalls() != 1 {
		t.Fatalf("expected one backend call, got %d", backend.submitCalls())
	}
}

func TestSubmitSendsEveryQuestion(t *testing.T) {
	clock := &testClock{now: time.Now()}
	backend := newBackend(3)
	s := startSession(t, NewMemoryStore(), backend, time.Minute, clock)
	if err := s.Answer("a", 0); err != nil {
		t.Fatalf("answer: %v", err)
	}

	score, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(backend.got) != 3 {
		t.Fatalf("expected 3 answers, got %d", len(backend.got))
	}
	if backend.got[1].Selected != domain.NoSelection || backend.got[2].Selected != domain.NoSelection {
		t.Fatalf("unanswered questions must carry the sentinel: %+v", backend.got)
	}
	if score.Score != 1 || score.TotalQuestions != 3 {
		t.Fatalf("unexpected score %+v", score)
	}
}

func TestFailedSubmissionStaysResumable(t *testing.T) {
	clock := &testClock{now: time.Now()}
	store := NewMemoryStore()
	backend := newBackend(2)
	backend.err = errors.New("network down")
	s := startSession(t, store, backend, time.Minute, clock)

	if _, err := s.Submit(context.Background()); err == nil {
		t.Fatalf("expected submit error")
	}
	if s.Step() != StepQuiz {
		t.Fatalf("failed submit must stay on quiz, got %s", s.Step())
	}
	if done, _ := store.Completed(); done {
		t.Fatalf("completion recorded before a successful response")
	}

	backend.err = nil
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if done, _ := store.Completed(); !done {
		t.Fatalf("expected completion after success")
	}
}

func TestFinishKeepsCompletion(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Now()}
	store := NewMemoryStore()
	backend := newBackend(1)
	s := startSession(t, store, backend, time.Minute, clock)

	if err := s.Finish(); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("finish before results: %v", err)
	}
	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, found, _ := store.Load(); found {
		t.Fatalf("session snapshot should be cleared")
	}

	again, err := New(store, backend, time.Minute, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if again.Step() != StepCompleted {
		t.Fatalf("expected completed, got %s", again.Step())
	}
	if err := again.Start(ctx); !errors.Is(err, ErrCompleted) {
		t.Fatalf("expected ErrCompleted, got %v", err)
	}
}

// markFailStore fails the first n MarkCompleted calls.
type markFailStore struct {
	*MemoryStore
	mu    sync.Mutex
	fails int
}

func (s *markFailStore) MarkCompleted() error {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return errors.New("disk full")
	}
	s.mu.Unlock()
	return s.MemoryStore.MarkCompleted()
}

func TestCompletionSurvivesFailedMark(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Now()}
	store := &markFailStore{MemoryStore: NewMemoryStore(), fails: 1}
	backend := newBackend(2)
	s := startSession(t, store, backend, time.Minute, clock)

	if _, err := s.Submit(ctx); err == nil {
		t.Fatalf("expected the completion write to fail")
	}
	if s.Step() != StepResults {
		t.Fatalf("expected results step, got %s", s.Step())
	}
	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if backend.submitCalls() != 1 {
		t.Fatalf("expected one backend submission, got %d", backend.submitCalls())
	}

	again, err := New(store, backend, time.Minute, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if again.Step() != StepCompleted {
		t.Fatalf("expected completed after reload, got %s", again.Step())
	}
}

func TestReloadOnResultsMarksCompletion(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Now()}
	store := &markFailStore{MemoryStore: NewMemoryStore(), fails: 1}
	backend := newBackend(1)
	s := startSession(t, store, backend, time.Minute, clock)
	if _, err := s.Submit(ctx); err == nil {
		t.Fatalf("expected the completion write to fail")
	}

	// Restarting on the results screen writes the flag that was missed.
	reloaded, err := New(store, backend, time.Minute, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if reloaded.Step() != StepResults {
		t.Fatalf("expected results step, got %s", reloaded.Step())
	}
	if done, _ := store.Completed(); !done {
		t.Fatalf("expected completion flag after reload")
	}
}

func TestAnswerAndNavigationBounds(t *testing.T) {
	clock := &testClock{now: time.Now()}
	s := startSession(t, NewMemoryStore(), newBackend(2), time.Minute, clock)

	if err := s.Answer("zz", 0); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("expected ErrUnknownQuestion, got %v", err)
	}
	if err := s.Answer("a", 4); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
	_ = s.Prev()
	if s.Snapshot().Current != 0 {
		t.Fatalf("prev moved before the first question")
	}
	_ = s.Next()
	_ = s.Next()
	if s.Snapshot().Current != 1 {
		t.Fatalf("next moved past the last question")
	}
}

func TestLeaveGuard(t *testing.T) {
	clock := &testClock{now: time.Now()}
	s, err := New(NewMemoryStore(), newBackend(1), time.Minute, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, warn := s.LeaveGuard(); warn {
		t.Fatalf("no warning expected on the info step")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if msg, warn := s.LeaveGuard(); !warn || msg == "" {
		t.Fatalf("expected a warning mid-quiz")
	}
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, warn := s.LeaveGuard(); warn {
		t.Fatalf("no warning expected after submission")
	}
}

func TestRunSubmitsWhenTimeRunsOut(t *testing.T) {
	backend := newBackend(1)
	s, err := New(NewMemoryStore(), backend, 3*time.Second, WithTickInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ticks := 0
	if err := s.Run(ctx, func(Snapshot) { ticks++ }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ticks != 3 || s.Step() != StepResults || backend.submitCalls() != 1 {
		t.Fatalf("expected 3 ticks and one submission, got ticks=%d step=%s calls=%d", ticks, s.Step(), backend.submitCalls())
	}
}

func TestRestoreDiscardsInconsistentState(t *testing.T) {
	now := time.Now()
	got := Restore(Snapshot{Step: StepResults}, true, false, now, time.Minute)
	if got.Step != StepInfo || got.RemainingSeconds != 60 {
		t.Fatalf("results without a score should reset, got %+v", got)
	}
	got = Restore(Snapshot{Step: "bogus"}, true, false, now, time.Minute)
	if got.Step != StepInfo {
		t.Fatalf("unknown step should reset, got %s", got.Step)
	}
	got = Restore(Snapshot{Step: StepQuiz, Questions: []domain.PublicQuestion{{ID: "a"}}, RemainingSeconds: 30, SavedAt: now.Add(-time.Minute)}, true, false, now, time.Minute)
	if got.RemainingSeconds != 0 || got.Step != StepQuiz {
		t.Fatalf("expired quiz should resume with zero time, got %+v", got)
	}
	got = Restore(Snapshot{Step: StepQuiz}, true, true, now, time.Minute)
	if got.Step != StepCompleted {
		t.Fatalf("completion must win, got %s", got.Step)
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz", "session.json")
	store := NewFileStore(path)
	snap := Snapshot{Step: StepQuiz, Questions: []domain.PublicQuestion{{ID: "a"}}, Answers: map[string]int{"a": 3}, RemainingSeconds: 42}
	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.MarkCompleted(); err != nil {
		t.Fatalf("mark: %v", err)
	}

	reopened := NewFileStore(path)
	got, found, err := reopened.Load()
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if got.Answers["a"] != 3 || got.RemainingSeconds != 42 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if err := reopened.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := reopened.Load(); found {
		t.Fatalf("snapshot should be gone")
	}
	if done, _ := reopened.Completed(); !done {
		t.Fatalf("completion flag must survive Clear")
	}
}
