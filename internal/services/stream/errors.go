// Package stream delivers relay events to the client over SSE. It owns
// the bufio writer wrapping fasthttp's response stream and the connection
// state checks around every write.
package stream

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes streaming failures.
type ErrorType int

const (
	// Expected terminations, logged at debug only.
	ClientDisconnect ErrorType = iota
	StreamComplete

	// Unexpected failures.
	WriteFailure
)

type Error struct {
	Type      ErrorType
	Message   string
	Cause     error
	RequestID string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsExpected reports whether this termination is part of normal operation.
func (e *Error) IsExpected() bool {
	return e.Type == ClientDisconnect || e.Type == StreamComplete
}

func NewClientDisconnectError(requestID string) *Error {
	return &Error{
		Type:      ClientDisconnect,
		Message:   "client disconnected",
		RequestID: requestID,
	}
}

func NewWriteFailureError(requestID, message string, cause error) *Error {
	return &Error{
		Type:      WriteFailure,
		Message:   message,
		Cause:     cause,
		RequestID: requestID,
	}
}

// IsClientDisconnect checks if an error is a client disconnect.
func IsClientDisconnect(err error) bool {
	var streamErr *Error
	if errors.As(err, &streamErr) {
		return streamErr.Type == ClientDisconnect
	}
	return false
}

// IsConnectionClosed checks if a raw write error indicates the peer went
// away. String matching is the only option; the failure surfaces from
// several layers with no shared sentinel.
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection closed") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "use of closed network connection")
}
