// Package validation checks request payloads before they reach the services.
// Every violation is reported, not just the first one.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"quiz-api/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Errors lists every field violation of a payload.
type Errors struct {
	Violations []string
}

func (e *Errors) Error() string {
	return "validation error: " + strings.Join(e.Violations, "; ")
}

// Unwrap classifies validation failures as domain validation errors.
func (e *Errors) Unwrap() error {
	return errValidation
}

var errValidation = domain.NewError(domain.KindValidation, "validation error")

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	Role        string `json:"role" validate:"omitempty,oneof=student admin"`
	AllowRetake bool   `json:"allowRetake"`
}

// Normalize trims fields, lowercases the email, and defaults the role.
func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Role = strings.TrimSpace(r.Role)
	if r.Role == "" {
		r.Role = string(domain.RoleStudent)
	}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Normalize trims and lowercases the email.
func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// QuestionRequest is the create/update question payload.
type QuestionRequest struct {
	Question           string   `json:"question" validate:"required"`
	Answers            []string `json:"answers" validate:"required,len=4,dive,required"`
	CorrectAnswerIndex *int     `json:"correctAnswerIndex" validate:"required,min=0,max=3"`
	Course             string   `json:"course" validate:"required"`
	Topic              string   `json:"topic" validate:"required"`
}

// Normalize trims every string so that blank options fail the required check.
func (r *QuestionRequest) Normalize() {
	r.Question = strings.TrimSpace(r.Question)
	r.Course = strings.TrimSpace(r.Course)
	r.Topic = strings.TrimSpace(r.Topic)
	for i := range r.Answers {
		r.Answers[i] = strings.TrimSpace(r.Answers[i])
	}
}

// ToQuestion converts a validated request into a question.
func (r QuestionRequest) ToQuestion() domain.Question {
	idx := 0
	if r.CorrectAnswerIndex != nil {
		idx = *r.CorrectAnswerIndex
	}
	options := make([]string, len(r.Answers))
	copy(options, r.Answers)
	return domain.Question{
		Text:         r.Question,
		Options:      options,
		CorrectIndex: idx,
		Course:       r.Course,
		Topic:        r.Topic,
	}
}

// AnswerRequest is one entry of a submission. SelectedAnswer -1 means unanswered.
type AnswerRequest struct {
	Question       string `json:"question" validate:"required"`
	SelectedAnswer *int   `json:"selectedAnswer" validate:"required,min=-1,max=3"`
}

// SubmissionRequest is the quiz submission payload.
type SubmissionRequest struct {
	QuizType  string          `json:"quizType" validate:"required,oneof=random all filtered"`
	Course    string          `json:"course"`
	Topic     string          `json:"topic"`
	Answers   []AnswerRequest `json:"answers" validate:"required,min=1,dive"`
	TimeTaken *int            `json:"timeTaken" validate:"required,min=0"`
}

// Normalize trims the filter fields.
func (r *SubmissionRequest) Normalize() {
	r.QuizType = strings.TrimSpace(r.QuizType)
	r.Course = strings.TrimSpace(r.Course)
	r.Topic = strings.TrimSpace(r.Topic)
	for i := range r.Answers {
		r.Answers[i].Question = strings.TrimSpace(r.Answers[i].Question)
	}
}

// ToAnswers converts a validated request into grading input.
func (r SubmissionRequest) ToAnswers() []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, 0, len(r.Answers))
	for _, a := range r.Answers {
		selected := domain.NoSelection
		if a.SelectedAnswer != nil {
			selected = *a.SelectedAnswer
		}
		out = append(out, domain.AnswerSubmission{QuestionID: a.Question, Selected: selected})
	}
	return out
}

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates v and returns *Errors listing every violation, or nil.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Errors{Violations: []string{err.Error()}}
	}
	out := &Errors{Violations: make([]string, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Violations = append(out.Violations, message(fe))
	}
	return out
}

// Violations extracts the violation list from err, if it is a validation error.
func Violations(err error) ([]string, bool) {
	var ve *Errors
	if errors.As(err, &ve) {
		return ve.Violations, true
	}
	return nil, false
}

func message(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		if isCollection(fe.Kind()) {
			return fmt.Sprintf("%s must contain at least %s items", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "max":
		if isCollection(fe.Kind()) {
			return fmt.Sprintf("%s must contain at most %s items", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "len":
		if isCollection(fe.Kind()) {
			return fmt.Sprintf("%s must contain exactly %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be exactly %s characters long", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

// fieldPath drops the top-level struct name from the namespace,
// e.g. "SubmissionRequest.answers[0].question" -> "answers[0].question".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func isCollection(k reflect.Kind) bool {
	return k == reflect.Slice || k == reflect.Array || k == reflect.Map
}
