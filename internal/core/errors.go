package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by Start while a session exists.
	ErrAlreadyActive = errors.New("session already active")
	// ErrMissingDocument is a fatal precondition violation: streaming must
	// not start without an identity document.
	ErrMissingDocument = errors.New("identity document not provided")
)

// MediaAccessError wraps camera permission or hardware failures. Fatal.
type MediaAccessError struct {
	Err error
}

func (e *MediaAccessError) Error() string { return fmt.Sprintf("media access failed: %v", e.Err) }
func (e *MediaAccessError) Unwrap() error { return e.Err }

// ConnectionSetupError wraps peer-connection or channel creation failures. Fatal.
type ConnectionSetupError struct {
	Err error
}

func (e *ConnectionSetupError) Error() string {
	return fmt.Sprintf("connection setup failed: %v", e.Err)
}
func (e *ConnectionSetupError) Unwrap() error { return e.Err }

// NegotiationError reports a non-success signaling response or an answer
// that could not be applied. Fatal, tears the session down.
type NegotiationError struct {
	Status int
	Err    error
}

func (e *NegotiationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("negotiation failed: signaling returned %d", e.Status)
	}
	return fmt.Sprintf("negotiation failed: %v", e.Err)
}
func (e *NegotiationError) Unwrap() error { return e.Err }

// VerificationTransportError reports a non-success verification response.
// Transient: surfaced to the user, the session stays active and the next
// frame retries on its own.
type VerificationTransportError struct {
	Status int
	Err    error
}

func (e *VerificationTransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("verification call failed: status %d", e.Status)
	}
	return fmt.Sprintf("verification call failed: %v", e.Err)
}
func (e *VerificationTransportError) Unwrap() error { return e.Err }
