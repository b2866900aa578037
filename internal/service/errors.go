package service

import (
	"errors"
	"fmt"
)

var (
	ErrPasswordIncorrect = errors.New("password incorrect")
	ErrTokenIncorrect    = errors.New("token incorrect")
	ErrUserDisabled      = errors.New("user is disabled")
	ErrEmailTaken        = errors.New("email already registered")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")

	ErrInvitationInvalid   = errors.New("invitation token invalid")
	ErrInvitationExpired   = errors.New("invitation token expired")
	ErrInvitationClosed    = errors.New("invitation no longer accepts answers")
	ErrAssignmentExists    = errors.New("respondent already has an open assignment")
	ErrAssignmentNotOpen   = errors.New("assignment is not open")
	ErrQuestionnaireClosed = errors.New("questionnaire does not accept responses")
	ErrQuestionnaireEmpty  = errors.New("questionnaire has no questions")
	ErrQuestionnaireLocked = errors.New("archived questionnaire is read-only")

	ErrEmailNotCancellable = errors.New("only scheduled emails can be cancelled")
	ErrUnsafeRedirect      = errors.New("redirect target is not allowed")
)

// ValidationError carries a message meant for the API client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
