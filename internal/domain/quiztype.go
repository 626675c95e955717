package domain

import "strings"

// QuizType selects which question subset a submission is graded against.
type QuizType string

const (
	QuizRandom   QuizType = "random"
	QuizAll      QuizType = "all"
	QuizFiltered QuizType = "filtered"
)

// QuizTypes lists every known quiz type.
var QuizTypes = []QuizType{QuizRandom, QuizAll, QuizFiltered}

// Valid reports whether t is a known quiz type.
func (t QuizType) Valid() bool {
	for _, known := range QuizTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseQuizType normalizes raw and rejects unknown types.
func ParseQuizType(raw string) (QuizType, error) {
	t := QuizType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", ErrInvalidQuizType
	}
	return t, nil
}
