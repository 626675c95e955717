// Package session drives a single quiz sitting on the client: consent, a
// countdown, answering, one submission, and the results screen. Progress is
// snapshotted after every change so a restart resumes where it stopped.
package session

import (
	"time"

	"quiz-api/internal/domain"
)

// Step is the screen the session is on.
type Step string

const (
	StepInfo      Step = "info"
	StepQuiz      Step = "quiz"
	StepResults   Step = "results"
	StepCompleted Step = "completed"
)

// Score is the graded outcome shown on the results screen.
type Score struct {
	Score             int     `json:"score"`
	TotalQuestions    int     `json:"totalQuestions"`
	PercentageScore   float64 `json:"percentageScore"`
	AttemptsRemaining *int    `json:"attemptsRemaining,omitempty"`
}

// Snapshot is the persisted state of a session.
type Snapshot struct {
	Step             Step                    `json:"step"`
	Questions        []domain.PublicQuestion `json:"questions,omitempty"`
	Current          int                     `json:"currentIndex"`
	Answers          map[string]int          `json:"answers,omitempty"`
	RemainingSeconds int                     `json:"remainingSeconds"`
	Submitted        bool                    `json:"submitted"`
	LastScore        *Score                  `json:"lastScore,omitempty"`
	SavedAt          time.Time               `json:"savedAt"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Questions = append([]domain.PublicQuestion(nil), s.Questions...)
	if s.Answers != nil {
		out.Answers = make(map[string]int, len(s.Answers))
		for k, v := range s.Answers {
			out.Answers[k] = v
		}
	}
	if s.LastScore != nil {
		score := *s.LastScore
		out.LastScore = &score
	}
	return out
}

// Restore reconciles a loaded snapshot with the wall clock. A quiz in
// progress loses the time that passed since it was saved; a durable
// completion wins over anything else.
func Restore(snap Snapshot, found, completed bool, now time.Time, duration time.Duration) Snapshot {
	if completed {
		return Snapshot{Step: StepCompleted, SavedAt: now}
	}
	fresh := Snapshot{Step: StepInfo, RemainingSeconds: int(duration / time.Second), SavedAt: now}
	if !found {
		return fresh
	}

	switch snap.Step {
	case StepQuiz:
		if len(snap.Questions) == 0 {
			return fresh
		}
		if !snap.SavedAt.IsZero() && now.After(snap.SavedAt) {
			snap.RemainingSeconds -= int(now.Sub(snap.SavedAt) / time.Second)
		}
		if snap.RemainingSeconds < 0 {
			snap.RemainingSeconds = 0
		}
		if snap.Current < 0 || snap.Current >= len(snap.Questions) {
			snap.Current = 0
		}
		if snap.Answers == nil {
			snap.Answers = map[string]int{}
		}
		// A submission that never got a response is retried from the quiz screen.
		snap.Submitted = false
	case StepResults:
		if snap.LastScore == nil {
			return fresh
		}
	case StepInfo:
	default:
		return fresh
	}
	snap.SavedAt = now
	return snap
}
