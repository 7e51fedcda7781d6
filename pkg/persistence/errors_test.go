package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/flowstate/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		instanceErr := persistence.NewInstanceError("Lock", "instance-123", persistence.ErrInstanceNotFound)
		stateErr := &persistence.NodeStateError{Op: "Decide", NodeStateID: "ns-1", Err: persistence.ErrApprovalNotFound}
		nodeErr := &persistence.NodeError{Op: "Node", DiagramID: "d1", NodeID: "n1", Err: persistence.ErrNodeNotFound}

		assert.True(t, persistence.IsNotFound(instanceErr))
		assert.True(t, persistence.IsNotFound(stateErr))
		assert.True(t, persistence.IsNotFound(nodeErr))

		// Test error unwrapping
		assert.True(t, errors.Is(instanceErr, persistence.ErrInstanceNotFound))
		assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", stateErr), persistence.ErrApprovalNotFound))
		assert.False(t, errors.Is(nodeErr, persistence.ErrInstanceNotFound))
	})

	t.Run("duplicate running instance", func(t *testing.T) {
		err := persistence.NewInstanceError("Create", "instance-123", persistence.ErrDuplicateRunningInstance)

		assert.True(t, persistence.IsDuplicateRunningInstance(err))
		assert.False(t, persistence.IsNotFound(err))
	})

	t.Run("errors contain context", func(t *testing.T) {
		err := persistence.NewInstanceError("Transition", "instance-123", persistence.ErrInstanceNotFound)

		assert.Contains(t, err.Error(), "Transition")
		assert.Contains(t, err.Error(), "instance-123")
		assert.Contains(t, err.Error(), "workflow instance not found")

		nodeErr := &persistence.NodeError{Op: "Node", DiagramID: "d1", NodeID: "n1", Err: persistence.ErrNodeNotFound}
		assert.Contains(t, nodeErr.Error(), "node n1 in diagram d1")
	})
}
