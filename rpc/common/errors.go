package common

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost is returned when the connection to the relay is gone.
	ErrConnectionLost = errors.New("connection lost")

	// ErrMalformedEnvelope is returned for frames that cannot be decoded into an envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrUnknownCommand is returned for well-formed envelopes carrying a command nobody knows.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNotConnected is returned when sending before Connect or after Close.
	ErrNotConnected = errors.New("not connected")
)

// HandlerFailure wraps an error (or recovered panic) raised by a local event handler.
type HandlerFailure struct {
	Command Command
	Err     error
}

func (f *HandlerFailure) Error() string {
	return fmt.Sprintf("handler %s failed: %v", f.Command, f.Err)
}

func (f *HandlerFailure) Unwrap() error {
	return f.Err
}

// ErrorHook receives errors which have no caller to return to:
// handler failures on the bus and failed writes of the coalescer.
type ErrorHook func(event string, err error)

// NopErrorHook ignores all errors.
func NopErrorHook(string, error) {}
