package domain

import (
	"strconv"
	"strings"
	"time"
)

// OptionCount is the fixed number of options every question carries.
const OptionCount = 4

// NoSelection marks a question the user left unanswered. It never matches a
// correct index.
const NoSelection = -1

// Role is a user's single authorization role.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	AllowRetake  bool      `json:"allowRetake"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Question models an MCQ question with exactly four options.
type Question struct {
	ID           string    `json:"id"`
	Text         string    `json:"question"`
	Options      []string  `json:"answers"`
	CorrectIndex int       `json:"correctAnswerIndex"`
	Course       string    `json:"course"`
	Topic        string    `json:"topic"`
	CreatedBy    string    `json:"createdBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CorrectAnswer returns the text of the correct option.
func (q Question) CorrectAnswer() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}

// PublicQuestion is the student-facing view of a question without its answer key.
type PublicQuestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"answers"`
	Course  string   `json:"course"`
	Topic   string   `json:"topic"`
}

// Public strips the answer key.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:      q.ID,
		Text:    q.Text,
		Options: q.Options,
		Course:  q.Course,
		Topic:   q.Topic,
	}
}

// QuestionFilter narrows the catalog by course and/or topic.
// Matching is a case-insensitive substring match.
type QuestionFilter struct {
	Course string
	Topic  string
}

// Empty reports whether no criterion is set.
func (f QuestionFilter) Empty() bool {
	return strings.TrimSpace(f.Course) == "" && strings.TrimSpace(f.Topic) == ""
}

// Matches applies the filter to q in memory.
func (f QuestionFilter) Matches(q Question) bool {
	if c := strings.TrimSpace(f.Course); c != "" && !containsFold(q.Course, c) {
		return false
	}
	if t := strings.TrimSpace(f.Topic); t != "" && !containsFold(q.Topic, t) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// AnswerSubmission is one (question, selected option) pair sent by a client.
type AnswerSubmission struct {
	QuestionID string
	Selected   int
}

// GradedAnswer is a submission pair after grading.
type GradedAnswer struct {
	QuestionID    string `json:"question"`
	Selected      int    `json:"selectedAnswer"`
	CorrectAnswer int    `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// Attempt is one graded quiz submission.
type Attempt struct {
	QuizType        QuizType       `json:"quizType"`
	Course          string         `json:"course,omitempty"`
	Topic           string         `json:"topic,omitempty"`
	Answers         []GradedAnswer `json:"answers"`
	Score           int            `json:"score"`
	TotalQuestions  int            `json:"totalQuestions"`
	PercentageScore float64        `json:"percentageScore"`
	TimeTaken       int            `json:"timeTaken"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// UserSummary is the public identity attached to listed results.
type UserSummary struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Result is the single stored result of a user for one quiz type.
type Result struct {
	ID     string `json:"id"`
	UserID string `json:"user"`
	Attempt
	// UpdatedAt moves on every retake overwrite.
	UpdatedAt   time.Time    `json:"updatedAt"`
	UserDetails *UserSummary `json:"userDetails,omitempty"`
}

// AttemptLog is the append-only log of a user's attempts.
type AttemptLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user"`
	Attempts  []Attempt `json:"attempts"`
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// DayWindow returns the calendar day containing t in loc.
func DayWindow(t time.Time, loc *time.Location) Window {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{From: start, To: start.AddDate(0, 0, 1)}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// CountIn returns how many attempts were created inside w.
func (l AttemptLog) CountIn(w Window) int {
	n := 0
	for _, a := range l.Attempts {
		if w.Contains(a.CreatedAt) {
			n++
		}
	}
	return n
}

// Results flattens the log into one Result per attempt, oldest first.
func (l AttemptLog) Results() []Result {
	out := make([]Result, 0, len(l.Attempts))
	for i, a := range l.Attempts {
		out = append(out, Result{
			ID:        l.ID + "-" + strconv.Itoa(i+1),
			UserID:    l.UserID,
			Attempt:   a,
			UpdatedAt: a.CreatedAt,
		})
	}
	return out
}

// ResultEvent is emitted after an attempt has been recorded.
type ResultEvent struct {
	UserID          string    `json:"userId"`
	Username        string    `json:"username"`
	QuizType        QuizType  `json:"quizType"`
	Score           int       `json:"score"`
	TotalQuestions  int       `json:"totalQuestions"`
	PercentageScore float64   `json:"percentageScore"`
	AttemptNumber   int       `json:"attemptNumber"`
	RecordedAt      time.Time `json:"recordedAt"`
}

// Page selects a window of a listing. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Normalize applies defaults and bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Offset returns the number of items to skip.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}
