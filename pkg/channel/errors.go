package channel

import (
	"errors"
	"fmt"

	"github.com/switches/sensorbridge/pkg/wire"
)

// Messenger errors.
var (
	ErrNotImplemented = errors.New("not implemented")
	ErrSinkClosed     = errors.New("event sink closed")
	ErrNotListening   = errors.New("no active stream to cancel")
	ErrClosed         = errors.New("messenger closed")
)

// Error is a handler failure carried to the client in a Reply.
type Error struct {
	Status  wire.Status
	Message string
	Details any
}

// Error implements error.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// NewError creates an Error with a formatted message.
func NewError(status wire.Status, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Unsupported reports that the platform lacks a capability.
func Unsupported(capability string, required int) *Error {
	return &Error{
		Status:  wire.StatusUnsupported,
		Message: capability + " not available on this platform",
		Details: map[string]any{"capability": capability, "requiredApiLevel": required},
	}
}

// NotImplemented reports an unknown method.
func NotImplemented(method string) *Error {
	return &Error{Status: wire.StatusNotImplemented, Message: method}
}

// StatusOf maps an error to a reply status and message.
func StatusOf(err error) (wire.Status, string, any) {
	var ce *Error
	switch {
	case errors.As(err, &ce):
		return ce.Status, ce.Message, ce.Details
	case errors.Is(err, ErrNotImplemented):
		return wire.StatusNotImplemented, err.Error(), nil
	case errors.Is(err, wire.ErrInvalidArgument), errors.Is(err, wire.ErrMissingArgument):
		return wire.StatusInvalidArgument, err.Error(), nil
	default:
		return wire.StatusError, err.Error(), nil
	}
}

// ReplyError converts a failed Reply into an error.
func ReplyError(msg *wire.Message) error {
	if msg.Status.IsSuccess() {
		return nil
	}
	return &Error{Status: msg.Status, Message: msg.Error, Details: msg.Details}
}
