package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for common client error conditions.
var (
	// ErrClosed is returned when an operation is attempted on a
	// closed client.
	ErrClosed = errors.New("client: closed")

	// ErrNoHive is returned when a connection is attempted without a
	// hive identifier configured.
	ErrNoHive = errors.New("client: no hive id configured")

	// ErrNotConnected is returned internally when a write is attempted
	// without a live transport.
	ErrNotConnected = errors.New("client: not connected")

	// ErrHandshakeFailed is returned when the server never sent its
	// welcome within the handshake timeout.
	ErrHandshakeFailed = errors.New("client: handshake failed")
)

// ConnectError wraps a failed connection attempt with enough context
// for diagnostics: which endpoint, which attempt, and whether it was
// part of an automatic reconnect.
type ConnectError struct {
	URL       string
	Attempt   int
	Reconnect bool
	Err       error
}

// Error returns a human-readable description of the failure.
func (e *ConnectError) Error() string {
	kind := "connect"
	if e.Reconnect {
		kind = "reconnect"
	}
	return fmt.Sprintf("client: %s attempt %d to %s failed: %v", kind, e.Attempt, e.URL, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnectError) Unwrap() error {
	return e.Err
}
