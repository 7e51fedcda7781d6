package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/flowstate/pkg/eventbus"
	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/persistence"
)

// Step is one processed activation of a cascade, in processing order.
type Step struct {
	NodeID      string                 `json:"node_id"`
	NodeType    models.NodeType        `json:"node_type"`
	NodeStateID string                 `json:"node_state_id,omitempty"`
	Status      models.NodeStateStatus `json:"status,omitempty"`
	Executed    bool                   `json:"executed"`
	FanOut      int                    `json:"fan_out"`
}

// activation asks the propagator to deliver one input to targetNodeID.
type activation struct {
	from         *models.NodeState
	fromNode     *models.DiagramNode
	connectionID string
	targetNodeID string
}

// unit is the state of one external call: its transaction, the locked
// instance, the pending work-list and what to publish once committed. Rows
// written by the call are stamped with now.
type unit struct {
	tx       persistence.Repositories
	now      time.Time
	instance *models.WorkflowInstance
	queue    []activation
	trace    []Step
	outbox   []eventbus.Event
	dirty    bool
}

func newUnit(tx persistence.Repositories, now time.Time) *unit {
	return &unit{tx: tx, now: now}
}

// apply merges a fragment into the instance context. The context is written
// back once when the cascade ends.
func (u *unit) apply(nodeStateID string, fragment models.Fragment) {
	if u.instance.Context == nil {
		u.instance.Context = models.NewContext()
	}

	u.instance.Context.Apply(nodeStateID, fragment)
	u.dirty = true
}

// fragment returns the context fragment written by a node-state.
func (u *unit) fragment(nodeStateID string) *models.NodeContext {
	return u.instance.Context.Node(nodeStateID)
}

func (u *unit) root() *models.NodeContext {
	if u.instance.Context == nil {
		return &models.NodeContext{}
	}

	return &u.instance.Context.Root
}

func (u *unit) emit(event eventbus.Event) {
	u.outbox = append(u.outbox, event)
}

// enqueue schedules one activation per connection, all coming from state.
func (u *unit) enqueue(state *models.NodeState, node *models.DiagramNode, connections []*models.Connection) {
	for _, connection := range connections {
		u.queue = append(u.queue, activation{
			from:         state,
			fromNode:     node,
			connectionID: connection.ID,
			targetNodeID: connection.TargetNodeID,
		})
	}
}

func (u *unit) next() (activation, bool) {
	if len(u.queue) == 0 {
		return activation{}, false
	}

	act := u.queue[0]
	u.queue = u.queue[1:]

	return act, true
}

func (u *unit) flush(ctx context.Context) error {
	if !u.dirty {
		return nil
	}

	err := u.tx.Instances().SaveContext(ctx, u.instance.ID, u.instance.Context)
	if err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}

	u.dirty = false

	return nil
}

// outgoing returns every outgoing connection of node.
func (u *unit) outgoing(ctx context.Context, node *models.DiagramNode) ([]*models.Connection, error) {
	connections, err := u.tx.Graph().OutgoingConnections(ctx, node.DiagramID, node.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outgoing connections of node %s: %w", node.NodeID, err)
	}

	return connections, nil
}

// humans returns the assignment rules of the human nodes connected to node,
// in either direction.
func (u *unit) humans(ctx context.Context, node *models.DiagramNode) ([]models.HumanData, error) {
	graph := u.tx.Graph()

	outgoing, err := graph.OutgoingConnections(ctx, node.DiagramID, node.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outgoing connections of node %s: %w", node.NodeID, err)
	}

	incoming, err := graph.IncomingConnections(ctx, node.DiagramID, node.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load incoming connections of node %s: %w", node.NodeID, err)
	}

	neighbours := make([]string, 0, len(outgoing)+len(incoming))
	for _, connection := range outgoing {
		neighbours = append(neighbours, connection.TargetNodeID)
	}

	for _, connection := range incoming {
		neighbours = append(neighbours, connection.SourceNodeID)
	}

	seen := make(map[string]bool, len(neighbours))
	rules := make([]models.HumanData, 0)

	for _, nodeID := range neighbours {
		if seen[nodeID] {
			continue
		}

		seen[nodeID] = true

		neighbour, err := graph.Node(ctx, node.DiagramID, nodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load node %s: %w", nodeID, err)
		}

		if neighbour.NodeType != models.NodeTypeHuman {
			continue
		}

		rule, err := neighbour.Human()
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	return rules, nil
}
