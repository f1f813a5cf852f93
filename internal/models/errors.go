package models

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrNoPairing        = errors.New("no pairing outstanding")
	ErrPairingExpired   = errors.New("pairing expired")
	ErrPairingMismatch  = errors.New("pairing PIN mismatch")
	ErrInvalidToken     = errors.New("invalid token")
	ErrNoteNotFound     = errors.New("note not found")
	ErrTransportRunning = errors.New("transport already running")
	ErrBLEUnavailable   = errors.New("bluetooth adapter unavailable")
	ErrPortUnavailable  = errors.New("no free port in probe range")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// PathError wraps a note store failure with the offending path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// TransportError reports a failure scoped to one transport so that the
// other transport can keep running.
type TransportError struct {
	Transport TransportType
	Phase     string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport %s: %v", e.Transport, e.Phase, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a malformed or out-of-order peer message. The
// connection stays alive; the peer gets a structured error response.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Message)
}
