package registry

import (
	"errors"
	"fmt"
)

// ErrGroupNotLoaded is returned when unloading or reloading a group that is
// not loaded.
var ErrGroupNotLoaded = errors.New("group not loaded")

// DuplicateGroupError is returned by LoadGroup for a group that is already
// loaded.
type DuplicateGroupError struct {
	Group string
}

func (e *DuplicateGroupError) Error() string {
	return fmt.Sprintf("group %q is already loaded", e.Group)
}

// DuplicateTriggerError is returned when a command name or alias is already
// taken, either inside the group being loaded or by another group.
type DuplicateTriggerError struct {
	Trigger  string
	Group    string
	Existing string
}

func (e *DuplicateTriggerError) Error() string {
	if e.Existing == e.Group {
		return fmt.Sprintf("group %q registers command %q twice", e.Group, e.Trigger)
	}
	return fmt.Sprintf("group %q: command %q is already registered by group %q", e.Group, e.Trigger, e.Existing)
}
