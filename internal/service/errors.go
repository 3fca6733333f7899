package service

import "errors"

// Review workflow error taxonomy. Handlers map these onto HTTP statuses.
var (
	ErrNotFound        = errors.New("equipment item not found")
	ErrForbidden       = errors.New("permission denied")
	ErrLockConflict    = errors.New("someone else is working on this item right now")
	ErrAlreadyReviewed = errors.New("this item was already reviewed")
	ErrNotReviewed     = errors.New("this item was not already reviewed")
	ErrAlreadyApproved = errors.New("this item was already approved")
	ErrSelfReview      = errors.New("you cannot review an item that you created")
)

// ValidationError is a client-input error with a human-readable reason
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}
