package motor

import (
	"errors"

	"github.com/shykaruu/motor/chat"
)

// Handshake failures. Each one ends the connection it occurred on and
// nothing else.
var (
	ErrUnexpectedPacket = errors.New("motor: unexpected packet for state")
	ErrBadNextState     = errors.New("motor: handshake requested unknown state")
	ErrShortSecret      = errors.New("motor: shared secret shorter than 16 bytes")
	ErrVerifyMismatch   = errors.New("motor: verify token mismatch")
	ErrOutdatedClient   = errors.New("motor: client protocol older than server")
	ErrOutdatedServer   = errors.New("motor: client protocol newer than server")
	ErrAuthRejected     = errors.New("motor: session server rejected login")
)

// Runtime errors.
var (
	ErrNotStarting = errors.New("motor: runtime already started")
	ErrStopping    = errors.New("motor: runtime is stopping")
)

// errFinished ends a connection normally, such as after a status ping.
var errFinished = errors.New("motor: exchange finished")

// disconnectError ends a login with an optional message shown to the
// client.
type disconnectError struct {
	reason *chat.Component
	err    error
}

func (e *disconnectError) Error() string {
	if e.reason == nil {
		return e.err.Error()
	}
	return e.err.Error() + ": " + e.reason.String()
}

func (e *disconnectError) Unwrap() error { return e.err }

// disconnect wraps err with a reason sent to the client before closing.
func disconnect(reason chat.Component, err error) error {
	return &disconnectError{reason: &reason, err: err}
}

// reasonOf returns the client visible reason carried by err, if any.
func reasonOf(err error) (chat.Component, bool) {
	var de *disconnectError
	if errors.As(err, &de) && de.reason != nil {
		return *de.reason, true
	}
	return chat.Component{}, false
}
