package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for common connection and server error conditions.
var (
	// ErrServerClosed is returned when the server is shutting down.
	ErrServerClosed = errors.New("server: closed")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("server: invalid config")

	// ErrInvalidCredential is returned when the Authorization header cannot
	// be decoded.
	ErrInvalidCredential = errors.New("server: invalid credential")
)

// ConnError wraps an error with connection context for debugging.
type ConnError struct {
	ConnID string
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	if e.ConnID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: connection %s: %s: %v", e.ConnID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// NewConnError creates a new ConnError.
func NewConnError(connID, op string, err error) *ConnError {
	return &ConnError{
		ConnID: connID,
		Op:     op,
		Err:    err,
	}
}

// ProtocolError describes an inbound frame the server refused to handle.
type ProtocolError struct {
	ConnID    string
	Namespace string
	Message   string
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server: protocol error in connection %s: %s: %s",
		e.ConnID, e.Namespace, e.Message)
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(connID, namespace, message string) *ProtocolError {
	return &ProtocolError{
		ConnID:    connID,
		Namespace: namespace,
		Message:   message,
	}
}
