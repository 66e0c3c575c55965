package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrBusy          = errors.New("busy")
	ErrInvalidConfig = errors.New("invalid config")
	ErrQueueFull     = errors.New("queue is full")
	ErrUnknownKind   = errors.New("unknown action kind")

	ErrInvalidBackend = errors.New("invalid backend")
	ErrStoreAccess    = errors.New("state store read/write error")
)

func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	} else {
		return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
	}
}

// RejectionError is surfaced to the caller when the backend explicitly refused an
// availability change. The optimistic value has already been reverted when it is returned.
type RejectionError struct {
	Code    RejectCode
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("availability rejected: %s", e.Code)
	}
	return fmt.Sprintf("availability rejected: %s: %s", e.Code, e.Message)
}

// UserMessage is the text shown to the user for this rejection.
func (e *RejectionError) UserMessage() string {
	switch e.Code {
	case RateLimited:
		return "Too many changes. Please wait and retry shortly."
	case LockConflict:
		return "An update is already in progress."
	case Unauthorized:
		return "Your session has expired. Please sign in again."
	case NotFound:
		return "Account not found."
	default:
		if e.Message != "" {
			return e.Message
		}
		return "The update was rejected."
	}
}

// AsRejection returns the RejectionError wrapped in err, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
