package conn

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Run when the manager was closed.
var ErrClosed = errors.New("connection closed")

// TransientError is a connection failure that is retried after a backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthenticationError means the service rejected the credential. It is never
// retried.
type AuthenticationError struct {
	// Status is the HTTP status of a rejected upgrade, or 0.
	Status int
	// Code is the websocket close code, or 0.
	Code   int
	Reason string
}

func (e *AuthenticationError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("authentication rejected: HTTP %d", e.Status)
	case e.Code != 0:
		return fmt.Sprintf("authentication rejected: close %d %s", e.Code, e.Reason)
	default:
		return fmt.Sprintf("authentication rejected: %s", e.Reason)
	}
}

// IsAuthentication reports whether err is, or wraps, an AuthenticationError.
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}
