package store

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInactive         = errors.New("inactive")
	ErrClosedToday      = errors.New("closed today")
	ErrAlreadyQueued    = errors.New("already queued")
	ErrQueueClosed      = errors.New("queue closed")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrConflict         = errors.New("write conflict")
	ErrInvalidState     = errors.New("invalid state")
)

var (
	ErrServiceNotFound  = WithMessage(ErrNotFound, "service not found")
	ErrBusinessNotFound = WithMessage(ErrNotFound, "business not found")
	ErrQueueNotFound    = WithMessage(ErrNotFound, "queue not found")
	ErrItemNotFound     = WithMessage(ErrNotFound, "queue item not found")
)

type kindError struct {
	kind    error
	message string
}

func (e *kindError) Error() string { return e.message }

func (e *kindError) Unwrap() error { return e.kind }

// WithMessage attaches a caller-facing message to one of the error kinds
// above. errors.Is still matches the kind.
func WithMessage(kind error, message string) error {
	return &kindError{kind: kind, message: message}
}

// Message returns the caller-facing message carried by err, or an empty
// string when err is not a tagged kind.
func Message(err error) string {
	var tagged *kindError
	if errors.As(err, &tagged) {
		return tagged.message
	}
	return ""
}
