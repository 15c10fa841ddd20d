package dispatch

import (
	"errors"
	"fmt"
)

// ErrDrainTimeout is returned by Stop when the in-flight dispatch did not
// finish within the drain timeout and was abandoned.
var ErrDrainTimeout = errors.New("dispatch: drain timeout exceeded")

// HandlerError wraps a failure raised by a command or listener.
type HandlerError struct {
	Group   string
	Trigger string
	EventID string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s/%s on event %s: %v", e.Group, e.Trigger, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
