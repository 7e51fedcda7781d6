package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// JoinType tags fragments written by AND/OR join nodes.
type JoinType string

const (
	JoinTypeAnd JoinType = "and"
	JoinTypeOr  JoinType = "or"
)

// nodesKey is the reserved root key holding per node-state fragments.
const nodesKey = "nodes"

// NodeContext is the merged document produced by one node-state, or the
// instance-level document when used as the context root.
//
// Payload fields are stored in Fields and flattened next to the typed keys
// when encoded; typed keys win on collision.
type NodeContext struct {
	EventName      string         `json:"eventName,omitempty"`
	MappingID      string         `json:"mappingId,omitempty"`
	Result         *bool          `json:"result,omitempty"`
	Value          any            `json:"value,omitempty"`
	ConditionValue any            `json:"conditionValue,omitempty"`
	ConditionType  string         `json:"conditionType,omitempty"`
	CheckType      JoinType       `json:"checkType,omitempty"`
	LastInput      *bool          `json:"lastInput,omitempty"`
	InputReceived  int            `json:"inputReceived,omitempty"`
	ApprovalResult *bool          `json:"approvalResult,omitempty"`
	ApprovedCount  int            `json:"approvedCount,omitempty"`
	RejectedCount  int            `json:"rejectedCount,omitempty"`
	TotalCount     int            `json:"totalCount,omitempty"`
	ApprovalMode   ApprovalMode   `json:"approvalMode,omitempty"`
	Comment        string         `json:"comment,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	ProcessedAt    *time.Time     `json:"processedAt,omitempty"`
	Fields         map[string]any `json:"-"`
}

type nodeContextAlias NodeContext

var nodeContextKeys = []string{
	"eventName", "mappingId", "result", "value", "conditionValue", "conditionType",
	"checkType", "lastInput", "inputReceived", "approvalResult", "approvedCount",
	"rejectedCount", "totalCount", "approvalMode", "comment", "userId", "processedAt",
}

// MarshalJSON flattens payload fields next to the typed keys.
func (n NodeContext) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(nodeContextAlias(n))
	if err != nil {
		return nil, err
	}

	if len(n.Fields) == 0 {
		return typed, nil
	}

	merged := make(map[string]any, len(n.Fields)+len(nodeContextKeys))
	for key, value := range n.Fields {
		merged[key] = value
	}

	var typedMap map[string]any

	err = json.Unmarshal(typed, &typedMap)
	if err != nil {
		return nil, err
	}

	for key, value := range typedMap {
		merged[key] = value
	}

	return json.Marshal(merged)
}

// UnmarshalJSON reads the typed keys and keeps every other key as a payload field.
func (n *NodeContext) UnmarshalJSON(data []byte) error {
	var alias nodeContextAlias

	err := json.Unmarshal(data, &alias)
	if err != nil {
		return err
	}

	var raw map[string]any

	err = json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	for _, key := range nodeContextKeys {
		delete(raw, key)
	}

	delete(raw, nodesKey)

	*n = NodeContext(alias)
	if len(raw) > 0 {
		n.Fields = raw
	}

	return nil
}

// Field returns a payload field.
func (n *NodeContext) Field(name string) (any, bool) {
	if n == nil || n.Fields == nil {
		return nil, false
	}

	value, ok := n.Fields[name]

	return value, ok
}

// InputValue returns the value a downstream decision compares against:
// the named field when given, otherwise result, falling back to value.
func (n *NodeContext) InputValue(field string) (any, bool) {
	if n == nil {
		return nil, false
	}

	if field != "" {
		return n.Field(field)
	}

	if n.Result != nil {
		return *n.Result, true
	}

	if n.Value != nil {
		return n.Value, true
	}

	return nil, false
}

// GatedByJoin reports whether the fragment was written by an unfinished join of the given type.
func (n *NodeContext) GatedByJoin(join JoinType) bool {
	if n == nil || n.CheckType != join {
		return false
	}

	return n.LastInput == nil || !*n.LastInput
}

// Fragment is one of the known shapes executors merge into the context.
type Fragment interface {
	mergeInto(target *NodeContext)
	// mirrored fragments are merged into the context root as well.
	mirrored() bool
}

// TriggerFragment seeds the context with the triggering event and its payload.
// A payload value key becomes the fragment value; other keys reserved by the
// typed fields are dropped.
type TriggerFragment struct {
	EventName string
	MappingID string
	Payload   map[string]any
}

func (f TriggerFragment) mergeInto(target *NodeContext) {
	target.EventName = f.EventName
	target.MappingID = f.MappingID

	if len(f.Payload) == 0 {
		return
	}

	if target.Fields == nil {
		target.Fields = make(map[string]any, len(f.Payload))
	}

	for key, value := range f.Payload {
		switch {
		case key == "value":
			target.Value = value
		case key == nodesKey || slices.Contains(nodeContextKeys, key):
		default:
			target.Fields[key] = value
		}
	}
}

func (TriggerFragment) mirrored() bool { return true }

// DecisionFragment records an evaluated condition.
type DecisionFragment struct {
	ConditionValue any
	Result         bool
	ConditionType  string
	ProcessedAt    time.Time
}

func (f DecisionFragment) mergeInto(target *NodeContext) {
	result := f.Result
	processedAt := f.ProcessedAt

	target.ConditionValue = f.ConditionValue
	target.Result = &result
	target.ConditionType = f.ConditionType
	target.ProcessedAt = &processedAt
}

func (DecisionFragment) mirrored() bool { return true }

// JoinFragment records one input delivered to an AND/OR node. The upstream
// result and value travel with it so a downstream decision can still read them.
type JoinFragment struct {
	CheckType     JoinType
	LastInput     bool
	InputReceived int
	Result        *bool
	Value         any
}

func (f JoinFragment) mergeInto(target *NodeContext) {
	lastInput := f.LastInput

	target.CheckType = f.CheckType
	target.LastInput = &lastInput
	target.InputReceived = f.InputReceived

	if f.Result != nil {
		result := *f.Result
		target.Result = &result
	}

	if f.Value != nil {
		target.Value = f.Value
	}
}

func (JoinFragment) mirrored() bool { return false }

// ApprovalFragment records the resolution of a human-approval gate.
type ApprovalFragment struct {
	ApprovalResult bool
	ApprovedCount  int
	RejectedCount  int
	TotalCount     int
	ApprovalMode   ApprovalMode
	ProcessedAt    time.Time
	Comment        string
	UserID         string
}

func (f ApprovalFragment) mergeInto(target *NodeContext) {
	result := f.ApprovalResult
	processedAt := f.ProcessedAt

	target.ApprovalResult = &result
	target.ApprovedCount = f.ApprovedCount
	target.RejectedCount = f.RejectedCount
	target.TotalCount = f.TotalCount
	target.ApprovalMode = f.ApprovalMode
	target.ProcessedAt = &processedAt
	target.Comment = f.Comment
	target.UserID = f.UserID
}

func (ApprovalFragment) mirrored() bool { return true }

// OutcomeFragment is the decision-shaped result an approval gate hands to its
// successors, so a downstream decision treats it like any boolean condition.
type OutcomeFragment struct {
	Result bool
}

func (f OutcomeFragment) mergeInto(target *NodeContext) {
	result := f.Result
	approvalResult := f.Result

	target.Result = &result
	target.ApprovalResult = &approvalResult
	target.Value = strconv.FormatBool(f.Result)
}

func (OutcomeFragment) mirrored() bool { return false }

// Context is the instance-scoped document accumulating fragments.
type Context struct {
	Root  NodeContext
	Nodes map[string]*NodeContext
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{Nodes: make(map[string]*NodeContext)}
}

// Apply merges a fragment into the node-state entry and, for mirrored
// fragments, into the root.
func (c *Context) Apply(nodeStateID string, fragment Fragment) {
	if c.Nodes == nil {
		c.Nodes = make(map[string]*NodeContext)
	}

	entry, ok := c.Nodes[nodeStateID]
	if !ok {
		entry = &NodeContext{}
		c.Nodes[nodeStateID] = entry
	}

	fragment.mergeInto(entry)

	if fragment.mirrored() {
		fragment.mergeInto(&c.Root)
	}
}

// Node returns the fragment of a node-state, or nil when the node-state wrote none.
func (c *Context) Node(nodeStateID string) *NodeContext {
	if c == nil || c.Nodes == nil {
		return nil
	}

	return c.Nodes[nodeStateID]
}

// MarshalJSON encodes the root keys with the node fragments under "nodes".
func (c Context) MarshalJSON() ([]byte, error) {
	root, err := json.Marshal(c.Root)
	if err != nil {
		return nil, err
	}

	var document map[string]json.RawMessage

	err = json.Unmarshal(root, &document)
	if err != nil {
		return nil, err
	}

	nodes := c.Nodes
	if nodes == nil {
		nodes = map[string]*NodeContext{}
	}

	encodedNodes, err := json.Marshal(nodes)
	if err != nil {
		return nil, err
	}

	document[nodesKey] = encodedNodes

	return json.Marshal(document)
}

// UnmarshalJSON decodes a document produced by MarshalJSON.
func (c *Context) UnmarshalJSON(data []byte) error {
	var document map[string]json.RawMessage

	err := json.Unmarshal(data, &document)
	if err != nil {
		return fmt.Errorf("failed to decode context: %w", err)
	}

	c.Nodes = make(map[string]*NodeContext)

	if encodedNodes, ok := document[nodesKey]; ok {
		err = json.Unmarshal(encodedNodes, &c.Nodes)
		if err != nil {
			return fmt.Errorf("failed to decode context nodes: %w", err)
		}
	}

	return json.Unmarshal(data, &c.Root)
}
