package app_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"quiz-api/internal/app"
	"quiz-api/internal/domain"
	"quiz-api/internal/infra/memory"
)

func TestSubmitGradesSelectedIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	q := f.questions[0] // correct index 0
	f.setCorrect(t, q.ID, 2)

	out, err := f.single.Submit(ctx, f.student, app.Submission{
		QuizType:  domain.QuizAll,
		Answers:   []domain.AnswerSubmission{{QuestionID: q.ID, Selected: 2}},
		TimeTaken: 42,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.Attempt.Score != 1 || !out.Attempt.Answers[0].IsCorrect {
		t.Fatalf("expected correct answer scored, got %+v", out.Attempt)
	}
	if out.Attempt.Answers[0].CorrectAnswer != 2 {
		t.Fatalf("expected correct answer 2 in review, got %d", out.Attempt.Answers[0].CorrectAnswer)
	}
	if out.Attempt.PercentageScore != 100 {
		t.Fatalf("expected 100%%, got %v", out.Attempt.PercentageScore)
	}
	if out.Attempt.TimeTaken != 42 || out.AnsweredQuestions != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestSubmitScoreInvariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)

	answers := make([]domain.AnswerSubmission, 0, len(f.questions))
	for i, q := range f.questions {
		sel := q.CorrectIndex
		if i%3 == 0 {
			sel = (q.CorrectIndex + 1) % domain.OptionCount
		}
		answers = append(answers, domain.AnswerSubmission{QuestionID: q.ID, Selected: sel})
	}
	out, err := f.single.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: answers})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	a := out.Attempt
	if a.Score != 4 || a.TotalQuestions != 6 {
		t.Fatalf("expected 4/6, got %d/%d", a.Score, a.TotalQuestions)
	}
	if a.Score < 0 || a.Score > a.TotalQuestions {
		t.Fatalf("score out of range: %d", a.Score)
	}
	want := 100 * float64(a.Score) / float64(a.TotalQuestions)
	if math.Abs(a.PercentageScore-want) > 1e-9 {
		t.Fatalf("expected percentage %v, got %v", want, a.PercentageScore)
	}
}

func TestSubmitFilteredWithoutFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	_, err := f.single.Submit(ctx, f.student, app.Submission{
		QuizType: domain.QuizFiltered,
		Answers:  f.correctAnswers(),
	})
	if !errors.Is(err, domain.ErrFilterRequired) {
		t.Fatalf("expected filter error, got %v", err)
	}
	if domain.KindOf(err) != domain.KindBadRequest {
		t.Fatalf("expected bad request, got kind %v", domain.KindOf(err))
	}
	if rs, _ := f.results.FindByUser(ctx, f.student.ID); len(rs) != 0 {
		t.Fatalf("expected no record written, got %d", len(rs))
	}
}

func TestSubmitFilteredCountsMatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4) // courses alternate Go / Networking

	var answers []domain.AnswerSubmission
	for _, q := range f.questions {
		if q.Course == "Go" {
			answers = append(answers, domain.AnswerSubmission{QuestionID: q.ID, Selected: q.CorrectIndex})
		}
	}
	out, err := f.single.Submit(ctx, f.student, app.Submission{
		QuizType: domain.QuizFiltered,
		Filter:   domain.QuestionFilter{Course: "go"},
		Answers:  answers,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.Attempt.Course != "go" || out.Attempt.Score != 2 {
		t.Fatalf("unexpected attempt %+v", out.Attempt)
	}
}

func TestSubmitRejectsCountMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)

	_, err := f.single.Submit(ctx, f.student, app.Submission{
		QuizType: domain.QuizAll,
		Answers:  f.correctAnswers()[:2],
	})
	if !errors.Is(err, domain.ErrAnswerCountMismatch) {
		t.Fatalf("expected count mismatch, got %v", err)
	}
	if rs, _ := f.results.FindByUser(ctx, f.student.ID); len(rs) != 0 {
		t.Fatalf("partial submission must not be recorded")
	}
}

func TestSubmitRandomExpectsSampleSize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5) // random size 3

	_, err := f.single.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizRandom, Answers: f.correctAnswers()})
	if !errors.Is(err, domain.ErrAnswerCountMismatch) {
		t.Fatalf("expected count mismatch for 5 answers, got %v", err)
	}
	out, err := f.single.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizRandom, Answers: f.correctAnswers()[:3]})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.Attempt.TotalQuestions != 3 {
		t.Fatalf("expected 3 questions, got %d", out.Attempt.TotalQuestions)
	}
}

func TestSubmitRejectsInvalidQuizType(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.single.Submit(context.Background(), f.student, app.Submission{QuizType: "weekly", Answers: f.correctAnswers()})
	if !errors.Is(err, domain.ErrInvalidQuizType) {
		t.Fatalf("expected invalid quiz type, got %v", err)
	}
}

func TestSubmitRejectsDuplicateAnswers(t *testing.T) {
	f := newFixture(t, 2)
	id := f.questions[0].ID
	_, err := f.single.Submit(context.Background(), f.student, app.Submission{
		QuizType: domain.QuizAll,
		Answers:  []domain.AnswerSubmission{{QuestionID: id, Selected: 0}, {QuestionID: id, Selected: 1}},
	})
	if !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer error, got %v", err)
	}
}

func TestSubmitUnknownQuestion(t *testing.T) {
	f := newFixture(t, 2)
	_, err := f.single.Submit(context.Background(), f.student, app.Submission{
		QuizType: domain.QuizAll,
		Answers: []domain.AnswerSubmission{
			{QuestionID: f.questions[0].ID, Selected: 0},
			{QuestionID: "missing", Selected: 0},
		},
	})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResubmitWithoutRetakeKeepsRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	first, err := f.single.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: f.correctAnswers()})
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	wrong := f.correctAnswers()
	for i := range wrong {
		wrong[i].Selected = domain.NoSelection
	}
	_, err = f.single.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: wrong})
	if !errors.Is(err, domain.ErrAlreadyAttempted) {
		t.Fatalf("expected already attempted, got %v", err)
	}

	rs, err := f.results.FindByUser(ctx, f.student.ID)
	if err != nil {
		t.Fatalf("find results: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(rs))
	}
	if rs[0].ID != first.ResultID || rs[0].Score != 2 {
		t.Fatalf("stored record changed: %+v", rs[0])
	}
}

func TestResubmitWithRetakeOverwrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.student.AllowRetake = true

	first, err := f.single.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: f.correctAnswers()})
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	wrong := f.correctAnswers()
	wrong[0].Selected = domain.NoSelection
	second, err := f.single.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: wrong})
	if err != nil {
		t.Fatalf("retake failed: %v", err)
	}
	if second.ResultID != first.ResultID {
		t.Fatalf("expected overwrite in place, ids %s vs %s", first.ResultID, second.ResultID)
	}
	rs, _ := f.results.FindByUser(ctx, f.student.ID)
	if len(rs) != 1 || rs[0].Score != 1 {
		t.Fatalf("expected one overwritten record with score 1, got %+v", rs)
	}
}

func TestSingleResultIsPerQuizType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	if _, err := f.single.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: f.correctAnswers()}); err != nil {
		t.Fatalf("all submit failed: %v", err)
	}
	_, err := f.single.Submit(ctx, f.student, app.Submission{
		QuizType: domain.QuizFiltered,
		Filter:   domain.QuestionFilter{Topic: "concurrency"},
		Answers:  f.correctAnswers()[:1],
	})
	if err != nil {
		t.Fatalf("filtered submit failed: %v", err)
	}
	if rs, _ := f.results.FindByUser(ctx, f.student.ID); len(rs) != 2 {
		t.Fatalf("expected one result per quiz type, got %d", len(rs))
	}
}

func TestDailyCapForbidsFourthAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	for i := 1; i <= 3; i++ {
		out, err := f.daily.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: f.correctAnswers()})
		if err != nil {
			t.Fatalf("attempt %d failed: %v", i, err)
		}
		if out.AttemptNumber != i {
			t.Fatalf("expected attempt number %d, got %d", i, out.AttemptNumber)
		}
		if out.AttemptsRemaining == nil || *out.AttemptsRemaining != 3-i {
			t.Fatalf("expected %d remaining, got %v", 3-i, out.AttemptsRemaining)
		}
		f.advance(time.Hour)
	}

	_, err := f.daily.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: f.correctAnswers()})
	if !errors.Is(err, domain.ErrDailyLimitReached) {
		t.Fatalf("expected daily limit, got %v", err)
	}
	if domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden, got kind %v", domain.KindOf(err))
	}
	log, _ := f.logs.FindByUser(ctx, f.student.ID)
	if len(log.Attempts) != 3 {
		t.Fatalf("expected 3 stored attempts, got %d", len(log.Attempts))
	}

	f.advance(24 * time.Hour)
	out, err := f.daily.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: f.correctAnswers()})
	if err != nil {
		t.Fatalf("next day submit failed: %v", err)
	}
	if out.AttemptNumber != 1 || *out.AttemptsRemaining != 2 {
		t.Fatalf("expected fresh day, got %+v", out)
	}
}

func TestDailyCapHoldsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.daily.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: f.correctAnswers()})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 3 {
		t.Fatalf("expected exactly 3 accepted attempts, got %d", accepted)
	}
}

func TestSubmitBroadcastsAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	ch, cancel := f.feed.Subscribe()
	defer cancel()

	if _, err := f.single.Submit(ctx, f.student, app.Submission{QuizType: domain.QuizAll, Answers: f.correctAnswers()}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.UserID != f.student.ID || ev.Username != "student" || ev.Score != 1 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected result event")
	}
	if len(f.publisher.keys) != 1 || f.publisher.keys[0] != app.ResultRecordedKey {
		t.Fatalf("expected one published event, got %v", f.publisher.keys)
	}
}

func TestPublishFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture(t, 1)
	f.publisher.err = errors.New("broker down")

	if _, err := f.single.Submit(context.Background(), f.student, app.Submission{QuizType: domain.QuizAll, Answers: f.correctAnswers()}); err != nil {
		t.Fatalf("submit should succeed when publishing fails: %v", err)
	}
}

func TestGradeSentinelIsIncorrect(t *testing.T) {
	keys := map[string]int{"q1": 0, "q2": 3}
	graded, score := app.Grade([]domain.AnswerSubmission{
		{QuestionID: "q1", Selected: domain.NoSelection},
		{QuestionID: "q2", Selected: 3},
	}, keys)
	if score != 1 {
		t.Fatalf("expected score 1, got %d", score)
	}
	if graded[0].IsCorrect {
		t.Fatalf("sentinel must be graded incorrect")
	}
	if graded[0].Selected != domain.NoSelection {
		t.Fatalf("sentinel selection should be kept, got %d", graded[0].Selected)
	}
}

func TestGradeIsDeterministic(t *testing.T) {
	keys := map[string]int{"a": 1, "b": 2, "c": 0, "d": 3}
	answers := []domain.AnswerSubmission{
		{QuestionID: "a", Selected: 1},
		{QuestionID: "b", Selected: 0},
		{QuestionID: "c", Selected: 0},
		{QuestionID: "d", Selected: domain.NoSelection},
	}
	_, want := app.Grade(answers, keys)
	for i := 0; i < 50; i++ {
		if _, got := app.Grade(answers, keys); got != want {
			t.Fatalf("run %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestPercentage(t *testing.T) {
	if got := app.Percentage(1, 3); math.Abs(got-33.333333333) > 1e-6 {
		t.Fatalf("expected 33.33, got %v", got)
	}
	if got := app.Percentage(0, 0); got != 0 {
		t.Fatalf("expected 0 for empty quiz, got %v", got)
	}
}

type fixture struct {
	questions []domain.Question
	store     *memory.QuestionStore
	results   *memory.ResultStore
	logs      *memory.AttemptLogStore
	keys      *memory.AnswerKeyCache
	feed      *app.ResultFeed
	publisher *recordingPublisher
	student   domain.User
	single    *app.GradingService
	daily     *app.GradingService

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:     memory.NewQuestionStore(),
		results:   memory.NewResultStore(),
		logs:      memory.NewAttemptLogStore(),
		feed:      app.NewResultFeed(0),
		publisher: &recordingPublisher{},
		now:       time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.questions = seedQuestions(t, f.store, n)
	f.keys = memory.NewAnswerKeyCache(f.store, time.Minute)

	users := memory.NewUserStore()
	student, err := users.Create(ctx, domain.User{Username: "student", Email: "student@example.com", Role: domain.RoleStudent})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	f.student = student

	strategies := app.DefaultStrategies(f.store, 3)
	f.single = app.NewGradingServiceWithClock(strategies, f.keys, app.NewSingleResultPolicy(f.results), f.feed, f.publisher, f.clock)
	daily := app.NewDailyCapPolicyWithClock(f.logs, 3, time.UTC, f.clock)
	f.daily = app.NewGradingServiceWithClock(strategies, f.keys, daily, f.feed, f.publisher, f.clock)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) correctAnswers() []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, 0, len(f.questions))
	for _, q := range f.questions {
		out = append(out, domain.AnswerSubmission{QuestionID: q.ID, Selected: q.CorrectIndex})
	}
	return out
}

func (f *fixture) setCorrect(t *testing.T, id string, idx int) {
	t.Helper()
	q, err := f.store.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find question: %v", err)
	}
	q.CorrectIndex = idx
	if _, err := f.store.Update(context.Background(), q); err != nil {
		t.Fatalf("update question: %v", err)
	}
	_ = f.keys.Invalidate(context.Background(), id)
	for i := range f.questions {
		if f.questions[i].ID == id {
			f.questions[i].CorrectIndex = idx
		}
	}
}

// seedQuestions creates n questions; even ones are Go/Concurrency, odd ones Networking/HTTP.
func seedQuestions(t *testing.T, store *memory.QuestionStore, n int) []domain.Question {
	t.Helper()
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		course, topic := "Go", "Concurrency"
		if i%2 == 1 {
			course, topic = "Networking", "HTTP"
		}
		q, err := store.Create(context.Background(), domain.Question{
			Text:         fmt.Sprintf("Question %d?", i),
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: i % domain.OptionCount,
			Course:       course,
			Topic:        topic,
		})
		if err != nil {
			t.Fatalf("seed question: %v", err)
		}
		out = append(out, q)
	}
	return out
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	return nil
}
