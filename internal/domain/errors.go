package domain

import "errors"

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
)

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a classified error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

var (
	// ErrUserExists is returned when the username or email is already registered.
	ErrUserExists = NewError(KindConflict, "user already exists")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = NewError(KindNotFound, "user not found")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = NewError(KindUnauthorized, "incorrect email or password")
	// ErrInvalidToken is returned for missing, malformed, or expired tokens.
	ErrInvalidToken = NewError(KindUnauthorized, "invalid or expired token")
	// ErrMissingToken is returned when no bearer token was sent.
	ErrMissingToken = NewError(KindUnauthorized, "you are not logged in")
	// ErrTokenUserGone is returned when the token's user no longer exists.
	ErrTokenUserGone = NewError(KindUnauthorized, "the user belonging to this token no longer exists")
	// ErrForbidden is returned when the caller's role is not permitted.
	ErrForbidden = NewError(KindForbidden, "you do not have permission to perform this action")
	// ErrAdminRegistrationDisabled is returned when self-registration as admin is turned off.
	ErrAdminRegistrationDisabled = NewError(KindForbidden, "admin registration is disabled")

	// ErrQuestionExists is returned when a question with the same text exists.
	ErrQuestionExists = NewError(KindConflict, "a similar question already exists")
	// ErrInvalidQuestion is returned when a question breaks the four-option invariant.
	ErrInvalidQuestion = NewError(KindValidation, "a question needs exactly 4 non-empty answers and a correct index between 0 and 3")
	// ErrQuestionNotFound indicates a question id did not resolve.
	ErrQuestionNotFound = NewError(KindNotFound, "question not found")
	// ErrNoQuestions is returned when a listing is empty.
	ErrNoQuestions = NewError(KindNotFound, "no questions found")
	// ErrConfirmationRequired guards destructive bulk operations.
	ErrConfirmationRequired = NewError(KindBadRequest, "you must agree to delete all data (agreed=true)")

	// ErrInvalidQuizType is returned for an unknown quiz type.
	ErrInvalidQuizType = NewError(KindBadRequest, "invalid quiz type")
	// ErrFilterRequired is returned for a filtered quiz without course or topic.
	ErrFilterRequired = NewError(KindBadRequest, "at least one filter (course or topic) is required for filtered quiz type")
	// ErrAnswerCountMismatch is returned when the answer count differs from the expected set size.
	ErrAnswerCountMismatch = NewError(KindBadRequest, "answer count does not match the expected number of questions")
	// ErrDuplicateAnswer is returned when a question is answered twice in one submission.
	ErrDuplicateAnswer = NewError(KindBadRequest, "a question was answered more than once")
	// ErrAlreadyAttempted is returned when a user without retake permission submits again.
	ErrAlreadyAttempted = NewError(KindForbidden, "you have already attempted this quiz and are not allowed to retake it")
	// ErrDailyLimitReached is returned once the daily attempt cap is used up.
	ErrDailyLimitReached = NewError(KindForbidden, "you have exceeded the maximum number of attempts for today")
	// ErrResultsNotFound is returned when a user has no stored results.
	ErrResultsNotFound = NewError(KindNotFound, "no results found")
	// ErrConcurrentUpdate is returned when a conditional write kept losing races.
	ErrConcurrentUpdate = NewError(KindConflict, "concurrent submission in progress, please retry")
)
