package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/flowstate/pkg/persistence"
)

var (
	// ErrTriggerNotFound is returned when no trigger node listens to the event for the mapping.
	ErrTriggerNotFound = errors.New("no trigger node matches event and mapping")

	// ErrMultipleTriggerMatches is returned when more than one trigger node matches.
	ErrMultipleTriggerMatches = errors.New("more than one trigger node matches event and mapping")

	// ErrStepLimitExceeded aborts a cascade that activated more nodes than allowed.
	ErrStepLimitExceeded = errors.New("propagation step limit exceeded")

	// ErrInvalidRequest is returned for trigger or approval requests missing required fields.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMissingExecutor is returned by New when an executable node type has no executor.
	ErrMissingExecutor = errors.New("node type has no executor")
)

// TriggerError wraps dispatch errors with the event that caused them.
type TriggerError struct {
	Op        string
	EventName string
	MappingID string
	Err       error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("%s failed for event %s on mapping %s: %v", e.Op, e.EventName, e.MappingID, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

func (e *TriggerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsNotFound reports whether err means a trigger, node, instance, node-state
// or approval does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound) || persistence.IsNotFound(err)
}

// IsConflict reports whether err means the request clashes with the graph or
// with a running instance.
func IsConflict(err error) bool {
	return errors.Is(err, ErrMultipleTriggerMatches) || persistence.IsDuplicateRunningInstance(err)
}

// IsInvalid reports whether err means the request itself was malformed.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}
