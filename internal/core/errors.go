package core

import (
	"errors"
	"fmt"
)

// Error codes for wire-visible errors.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeInternal     = "internal"
)

var (
	// ErrInvalidPayload is the parent of every malformed-event error.
	ErrInvalidPayload = errors.New("invalid payload")
	ErrMissingRoom    = fmt.Errorf("%w: room key is required", ErrInvalidPayload)
	ErrMissingMessage = fmt.Errorf("%w: message is required", ErrInvalidPayload)
	ErrMissingID      = fmt.Errorf("%w: message has no store id", ErrInvalidPayload)
	ErrRoomMismatch   = fmt.Errorf("%w: message belongs to another room", ErrInvalidPayload)
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrInvalidPayload)

	// ErrGatewayClosed is returned by Open after Shutdown.
	ErrGatewayClosed = errors.New("gateway closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorEvent builds an error event for the connection that caused err.
func ErrorEvent(err error) *Event {
	var ce *CoreError
	if errors.As(err, &ce) {
		return &Event{Kind: EventError, Error: ce}
	}
	if errors.Is(err, ErrInvalidPayload) {
		return &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, err.Error())}
	}
	return &Event{Kind: EventError, Error: coreError(ErrCodeInternal, err.Error())}
}
