// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNodeNotFound indicates a diagram node was not found.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrNodeStateNotFound indicates a node-state was not found.
	ErrNodeStateNotFound = errors.New("node state not found")

	// ErrNodeStateExists indicates the node already has a node-state in the instance.
	ErrNodeStateExists = errors.New("node state already exists")

	// ErrApprovalNotFound indicates no pending approval exists for the user and node-state.
	ErrApprovalNotFound = errors.New("pending approval not found")

	// ErrDuplicateRunningInstance indicates a running instance already exists for the start key.
	ErrDuplicateRunningInstance = errors.New("running instance already exists for subject")

	// ErrDisplayNameNotFound indicates the directory has no display name for the key.
	ErrDisplayNameNotFound = errors.New("display name not found")
)

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string // Operation being performed (e.g., "Create", "Lock", "Transition")
	InstanceID string // Instance ID if applicable
	Err        error  // Underlying error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for instance errors.
func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{
		Op:         op,
		InstanceID: instanceID,
		Err:        err,
	}
}

// NodeStateError wraps node-state-related errors with additional context.
type NodeStateError struct {
	Op          string
	NodeStateID string
	Err         error
}

func (e *NodeStateError) Error() string {
	return fmt.Sprintf("%s operation failed for node state %s: %v", e.Op, e.NodeStateID, e.Err)
}

func (e *NodeStateError) Unwrap() error {
	return e.Err
}

func (e *NodeStateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NodeError wraps diagram node errors with additional context.
type NodeError struct {
	Op        string
	DiagramID string
	NodeID    string
	Err       error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s operation failed for node %s in diagram %s: %v", e.Op, e.NodeID, e.DiagramID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsNotFound checks if an error indicates a missing node, instance, node-state or approval.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrNodeStateNotFound) ||
		errors.Is(err, ErrApprovalNotFound)
}

// IsDuplicateRunningInstance checks if an error indicates a duplicate start.
func IsDuplicateRunningInstance(err error) bool {
	return errors.Is(err, ErrDuplicateRunningInstance)
}
