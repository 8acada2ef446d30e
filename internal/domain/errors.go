package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrTurnInProgress = errors.New("avatar turn in progress")
	ErrNoLocalStream  = errors.New("no local stream acquired")
)

// ErrorCategory routes a failure to its user-facing handling: setup-phase
// categories abort session construction, mid-session ones are reported
// without tearing down local resources.
type ErrorCategory int

const (
	CategoryUnknown ErrorCategory = iota
	// CategoryDevice: permission denied / device unavailable. Fatal to
	// setup, recoverable by retry.
	CategoryDevice
	// CategorySignaling: channel connect/join failure. Fatal to setup.
	CategorySignaling
	// CategoryNegotiation: SDP/ICE failure. Session enters Failed and
	// requires an explicit restart.
	CategoryNegotiation
	// CategoryTransport: REST failure in the avatar flow. Reported
	// per-call, does not necessarily end the session.
	CategoryTransport
	// CategoryTranscription: non-fatal, user is re-prompted to speak.
	CategoryTranscription
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryDevice:
		return "device"
	case CategorySignaling:
		return "signaling"
	case CategoryNegotiation:
		return "negotiation"
	case CategoryTransport:
		return "transport"
	case CategoryTranscription:
		return "transcription"
	default:
		return "unknown"
	}
}

// Error is a categorized session error. Nothing in the core silently retries
// on one of these; retries are user-initiated.
type Error struct {
	Category ErrorCategory
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(cat ErrorCategory, op string, err error) *Error {
	return &Error{Category: cat, Op: op, Err: err}
}

func DeviceError(op string, err error) *Error {
	return NewError(CategoryDevice, op, err)
}

func SignalingError(op string, err error) *Error {
	return NewError(CategorySignaling, op, err)
}

func NegotiationError(op string, err error) *Error {
	return NewError(CategoryNegotiation, op, err)
}

func TransportError(op string, err error) *Error {
	return NewError(CategoryTransport, op, err)
}

func TranscriptionError(op string, err error) *Error {
	return NewError(CategoryTranscription, op, err)
}

// CategoryOf extracts the category from anywhere in a wrap chain.
func CategoryOf(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryUnknown
}
