package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_ApplyTriggerSeedsRootAndNode(t *testing.T) {
	ctx := NewContext()
	ctx.Apply("ns-1", TriggerFragment{
		EventName: "create",
		MappingID: "3",
		Payload:   map[string]any{"Id": 42, "Name": "Acme", "nodes": "ignored"},
	})

	assert.Equal(t, "create", ctx.Root.EventName)
	assert.Equal(t, "3", ctx.Root.MappingID)

	name, ok := ctx.Root.Field("Name")
	require.True(t, ok)
	assert.Equal(t, "Acme", name)

	_, ok = ctx.Root.Field("nodes")
	assert.False(t, ok)

	node := ctx.Node("ns-1")
	require.NotNil(t, node)
	assert.Equal(t, "create", node.EventName)
}

func TestContext_JoinFragmentIsNotMirrored(t *testing.T) {
	ctx := NewContext()
	upstream := true

	ctx.Apply("and-1", JoinFragment{CheckType: JoinTypeAnd, LastInput: false, InputReceived: 1, Result: &upstream})

	assert.Empty(t, ctx.Root.CheckType)

	node := ctx.Node("and-1")
	require.NotNil(t, node)
	assert.True(t, node.GatedByJoin(JoinTypeAnd))
	assert.False(t, node.GatedByJoin(JoinTypeOr))

	value, ok := node.InputValue("")
	require.True(t, ok)
	assert.Equal(t, true, value)

	ctx.Apply("and-1", JoinFragment{CheckType: JoinTypeAnd, LastInput: true, InputReceived: 2})
	assert.False(t, ctx.Node("and-1").GatedByJoin(JoinTypeAnd))
	assert.Equal(t, 2, ctx.Node("and-1").InputReceived)
}

func TestNodeContext_InputValuePrefersResult(t *testing.T) {
	result := false
	node := &NodeContext{Result: &result, Value: "5"}

	value, ok := node.InputValue("")
	require.True(t, ok)
	assert.Equal(t, false, value)

	node = &NodeContext{Value: "5"}
	value, ok = node.InputValue("")
	require.True(t, ok)
	assert.Equal(t, "5", value)

	node = &NodeContext{Fields: map[string]any{"Name": "Acme"}}
	value, ok = node.InputValue("Name")
	require.True(t, ok)
	assert.Equal(t, "Acme", value)

	var missing *NodeContext
	_, ok = missing.InputValue("")
	assert.False(t, ok)
}

func TestContext_OutcomeFragmentShapesDecisionResult(t *testing.T) {
	ctx := NewContext()
	ctx.Apply("gate", OutcomeFragment{Result: true})

	node := ctx.Node("gate")
	require.NotNil(t, node)
	require.NotNil(t, node.Result)
	assert.True(t, *node.Result)
	require.NotNil(t, node.ApprovalResult)
	assert.True(t, *node.ApprovalResult)
	assert.Equal(t, "true", node.Value)
}

func TestContext_JSONRoundTripFlattensPayload(t *testing.T) {
	processedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ctx := NewContext()
	ctx.Apply("trigger", TriggerFragment{EventName: "create", MappingID: "3", Payload: map[string]any{"Id": 42, "Name": "Acme"}})
	ctx.Apply("decision", DecisionFragment{ConditionValue: "Acme", Result: true, ConditionType: "equals", ProcessedAt: processedAt})

	encoded, err := json.Marshal(ctx)
	require.NoError(t, err)

	var document map[string]any
	require.NoError(t, json.Unmarshal(encoded, &document))
	assert.Equal(t, "Acme", document["Name"])
	assert.Equal(t, true, document["result"])
	assert.Contains(t, document, "nodes")

	var decoded Context
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, "create", decoded.Root.EventName)
	require.NotNil(t, decoded.Root.Result)
	assert.True(t, *decoded.Root.Result)

	id, ok := decoded.Root.Field("Id")
	require.True(t, ok)
	assert.Equal(t, float64(42), id) // JSON numbers are float64

	decision := decoded.Node("decision")
	require.NotNil(t, decision)
	require.NotNil(t, decision.ProcessedAt)
	assert.True(t, processedAt.Equal(*decision.ProcessedAt))
	assert.Nil(t, decision.Fields)
}

func TestContext_ApprovalFragmentMirrorsToRoot(t *testing.T) {
	ctx := NewContext()
	ctx.Apply("gate", ApprovalFragment{
		ApprovalResult: false,
		ApprovedCount:  2,
		RejectedCount:  1,
		TotalCount:     3,
		ApprovalMode:   ApprovalModeAll,
		ProcessedAt:    time.Now().UTC(),
		Comment:        "no budget",
		UserID:         "u3",
	})

	require.NotNil(t, ctx.Root.ApprovalResult)
	assert.False(t, *ctx.Root.ApprovalResult)
	assert.Equal(t, 3, ctx.Root.TotalCount)
	assert.Equal(t, "no budget", ctx.Node("gate").Comment)
}

func TestTriggerFragment_ReservedPayloadKeys(t *testing.T) {
	ctx := NewContext()
	ctx.Apply("trigger", TriggerFragment{
		EventName: "create",
		Payload:   map[string]any{"value": "5", "result": "not a bool", "Name": "Acme"},
	})

	node := ctx.Node("trigger")
	require.NotNil(t, node)

	value, ok := node.InputValue("")
	require.True(t, ok)
	assert.Equal(t, "5", value)
	assert.Nil(t, node.Result)
	assert.NotContains(t, node.Fields, "result")
	assert.Equal(t, "Acme", node.Fields["Name"])

	encoded, err := json.Marshal(ctx)
	require.NoError(t, err)

	var decoded Context
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, "5", decoded.Node("trigger").Value)
}
