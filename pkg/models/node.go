// Package models defines the diagram, instance and node-state models driven by the workflow engine.
package models

import (
	"encoding/json"
	"fmt"
	"slices"
)

// NodeType is the closed set of node kinds a diagram may contain.
type NodeType string

const (
	NodeTypeStart    NodeType = "start"
	NodeTypeTrigger  NodeType = "trigger"
	NodeTypeDecision NodeType = "decision"
	NodeTypeAnd      NodeType = "and"
	NodeTypeOr       NodeType = "or"
	NodeTypeSend     NodeType = "send"
	NodeTypeHuman    NodeType = "human"
	NodeTypeEnd      NodeType = "end"
	NodeTypeComment  NodeType = "comment"
)

// NodeTypes lists every known node type.
var NodeTypes = []NodeType{
	NodeTypeStart,
	NodeTypeTrigger,
	NodeTypeDecision,
	NodeTypeAnd,
	NodeTypeOr,
	NodeTypeSend,
	NodeTypeHuman,
	NodeTypeEnd,
	NodeTypeComment,
}

// Valid reports whether t is part of the closed node type set.
func (t NodeType) Valid() bool {
	return slices.Contains(NodeTypes, t)
}

// IsAnnotation reports whether nodes of this type only describe other nodes
// (assignment rules, comments) and are never traversed.
func (t NodeType) IsAnnotation() bool {
	return t == NodeTypeHuman || t == NodeTypeComment
}

// Well-known trigger events with engine semantics.
const (
	EventApprove     = "approve"
	EventSendApprove = "sendapprove"
)

// DiagramNode is the read-only description of one node of a diagram.
type DiagramNode struct {
	DiagramID string          `json:"diagram_id"`
	NodeID    string          `json:"node_id"    validate:"required"`
	NodeType  NodeType        `json:"node_type"  validate:"required"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
}

// Connection is a directed edge between two nodes of the same diagram.
type Connection struct {
	ID           string         `json:"id"`
	DiagramID    string         `json:"diagram_id"`
	SourceNodeID string         `json:"source_node_id" validate:"required"`
	TargetNodeID string         `json:"target_node_id" validate:"required"`
	Data         ConnectionData `json:"data"`
}

// ConnectionData holds the optional branch discriminator of a connection.
type ConnectionData struct {
	Kind string `json:"kind,omitempty"`
}

// Branch reports which decision outcome the connection follows. ok is false
// when the connection carries no branch kind.
func (d ConnectionData) Branch() (value bool, ok bool) {
	switch d.Kind {
	case "true", "yes":
		return true, true
	case "false", "no":
		return false, true
	default:
		return false, false
	}
}

// Diagram groups the nodes and connections of one graph.
type Diagram struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Nodes       []*DiagramNode `json:"nodes"`
	Connections []*Connection  `json:"connections"`
}

// ApprovalMode is the quorum rule of a human-approval gate.
type ApprovalMode string

const (
	ApprovalModeAny ApprovalMode = "any"
	ApprovalModeAll ApprovalMode = "all"
)

// TriggerData is the typed view of a trigger node's data.
type TriggerData struct {
	Events       []string     `json:"events"`
	MappingIDs   []string     `json:"mappingIds"`
	ApprovalMode ApprovalMode `json:"approvalMode,omitempty"`
	Human        *HumanData   `json:"human,omitempty"`
}

// Mode returns the approval mode, defaulting to any.
func (d TriggerData) Mode() ApprovalMode {
	if d.ApprovalMode == ApprovalModeAll {
		return ApprovalModeAll
	}

	return ApprovalModeAny
}

// HasEvent reports whether the trigger listens to the given event.
func (d TriggerData) HasEvent(event string) bool {
	return slices.Contains(d.Events, event)
}

// HasMapping reports whether the trigger is bound to the given mapping id.
func (d TriggerData) HasMapping(mappingID string) bool {
	return slices.Contains(d.MappingIDs, mappingID)
}

// IsApprovalGate reports whether reaching the trigger opens a human approval.
func (d TriggerData) IsApprovalGate() bool {
	return d.HasEvent(EventApprove)
}

// DecisionData is the typed view of a decision node's data.
type DecisionData struct {
	ConditionValue any    `json:"conditionValue"`
	ConditionType  string `json:"conditionType,omitempty"`
	Field          string `json:"field,omitempty"`
}

// Channel is a notification delivery channel configured on a send node.
type Channel string

const (
	ChannelInApp Channel = "inapp"
	ChannelEmail Channel = "email"
)

// SendData is the typed view of a send node's data.
type SendData struct {
	Kinds   []Channel `json:"kinds"`
	Title   string    `json:"title,omitempty"`
	Message string    `json:"message,omitempty"`
}

// HumanType selects how a human node lists its users.
type HumanType string

const (
	HumanTypePersonal HumanType = "personal"
	HumanTypeRole     HumanType = "role"
)

// HumanData is the typed view of a human assignment node's data.
type HumanData struct {
	Type    HumanType `json:"type"`
	UserIDs []string  `json:"userIds,omitempty"`
	RoleIDs []string  `json:"roleIds,omitempty"`
}

// Trigger decodes the node data as trigger configuration.
func (n *DiagramNode) Trigger() (TriggerData, error) {
	var data TriggerData

	return data, n.decode(NodeTypeTrigger, &data)
}

// Decision decodes the node data as decision configuration.
func (n *DiagramNode) Decision() (DecisionData, error) {
	var data DecisionData

	return data, n.decode(NodeTypeDecision, &data)
}

// Send decodes the node data as send configuration.
func (n *DiagramNode) Send() (SendData, error) {
	var data SendData

	return data, n.decode(NodeTypeSend, &data)
}

// Human decodes the node data as a human assignment rule.
func (n *DiagramNode) Human() (HumanData, error) {
	var data HumanData

	return data, n.decode(NodeTypeHuman, &data)
}

func (n *DiagramNode) decode(expected NodeType, target any) error {
	if n.NodeType != expected {
		return fmt.Errorf("node %s is of type %s, not %s", n.NodeID, n.NodeType, expected)
	}

	if len(n.Data) == 0 {
		return nil
	}

	err := json.Unmarshal(n.Data, target)
	if err != nil {
		return fmt.Errorf("failed to decode %s data of node %s: %w", expected, n.NodeID, err)
	}

	return nil
}
