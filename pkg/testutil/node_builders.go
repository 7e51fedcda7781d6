// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/dukex/flowstate/pkg/models"
)

// DiagramBuilder assembles a diagram node by node.
type DiagramBuilder struct {
	diagram *models.Diagram
}

// NewDiagram starts a diagram with the given id.
func NewDiagram(id string) *DiagramBuilder {
	return &DiagramBuilder{diagram: &models.Diagram{ID: id, Name: "Test " + id}}
}

// Node adds a node whose data is the JSON encoding of data, or empty when data is nil.
func (b *DiagramBuilder) Node(nodeID string, nodeType models.NodeType, data any) *DiagramBuilder {
	node := &models.DiagramNode{
		DiagramID: b.diagram.ID,
		NodeID:    nodeID,
		NodeType:  nodeType,
		Name:      nodeID,
	}

	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			panic(fmt.Sprintf("failed to encode data of node %s: %v", nodeID, err))
		}

		node.Data = encoded
	}

	b.diagram.Nodes = append(b.diagram.Nodes, node)

	return b
}

// Start adds a start node.
func (b *DiagramBuilder) Start(nodeID string) *DiagramBuilder {
	return b.Node(nodeID, models.NodeTypeStart, nil)
}

// Trigger adds a trigger node listening to events for the given mappings.
func (b *DiagramBuilder) Trigger(nodeID string, events []string, mappingIDs []string, overrides ...func(*models.TriggerData)) *DiagramBuilder {
	data := models.TriggerData{Events: events, MappingIDs: mappingIDs}

	for _, override := range overrides {
		override(&data)
	}

	return b.Node(nodeID, models.NodeTypeTrigger, data)
}

// Decision adds a decision node comparing against conditionValue.
func (b *DiagramBuilder) Decision(nodeID string, conditionValue any, overrides ...func(*models.DecisionData)) *DiagramBuilder {
	data := models.DecisionData{ConditionValue: conditionValue}

	for _, override := range overrides {
		override(&data)
	}

	return b.Node(nodeID, models.NodeTypeDecision, data)
}

// Send adds a send node for the given channels.
func (b *DiagramBuilder) Send(nodeID string, kinds ...models.Channel) *DiagramBuilder {
	return b.Node(nodeID, models.NodeTypeSend, models.SendData{Kinds: kinds})
}

// Personal adds a human node listing users directly.
func (b *DiagramBuilder) Personal(nodeID string, userIDs ...string) *DiagramBuilder {
	return b.Node(nodeID, models.NodeTypeHuman, models.HumanData{Type: models.HumanTypePersonal, UserIDs: userIDs})
}

// Role adds a human node listing roles.
func (b *DiagramBuilder) Role(nodeID string, roleIDs ...string) *DiagramBuilder {
	return b.Node(nodeID, models.NodeTypeHuman, models.HumanData{Type: models.HumanTypeRole, RoleIDs: roleIDs})
}

// End adds an end node.
func (b *DiagramBuilder) End(nodeID string) *DiagramBuilder {
	return b.Node(nodeID, models.NodeTypeEnd, nil)
}

// Connect links source to target, optionally with a branch kind.
func (b *DiagramBuilder) Connect(source, target string, kind ...string) *DiagramBuilder {
	connection := &models.Connection{
		ID:           fmt.Sprintf("%s-%s-%d", source, target, len(b.diagram.Connections)),
		DiagramID:    b.diagram.ID,
		SourceNodeID: source,
		TargetNodeID: target,
	}

	if len(kind) > 0 {
		connection.Data.Kind = kind[0]
	}

	b.diagram.Connections = append(b.diagram.Connections, connection)

	return b
}

// Build returns the assembled diagram.
func (b *DiagramBuilder) Build() *models.Diagram {
	return b.diagram
}

// WithApprovalMode sets the quorum rule of an approval gate.
func WithApprovalMode(mode models.ApprovalMode) func(*models.TriggerData) {
	return func(d *models.TriggerData) {
		d.ApprovalMode = mode
	}
}

// WithInlineApprovers sets the fallback approvers of a trigger.
func WithInlineApprovers(userIDs ...string) func(*models.TriggerData) {
	return func(d *models.TriggerData) {
		d.Human = &models.HumanData{Type: models.HumanTypePersonal, UserIDs: userIDs}
	}
}

// WithField makes a decision read its input from a payload field.
func WithField(field string) func(*models.DecisionData) {
	return func(d *models.DecisionData) {
		d.Field = field
	}
}

// WithConditionType sets the comparison of a decision.
func WithConditionType(conditionType string) func(*models.DecisionData) {
	return func(d *models.DecisionData) {
		d.ConditionType = conditionType
	}
}
