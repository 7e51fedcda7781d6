package models

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_Validation_MissingFields(t *testing.T) {
	testCases := []struct {
		name       string
		connection *Connection
		fieldName  string
	}{
		{
			name:       "missing source node",
			connection: &Connection{ID: "conn-1", TargetNodeID: "n2"},
			fieldName:  "SourceNodeID",
		},
		{
			name:       "missing target node",
			connection: &Connection{ID: "conn-1", SourceNodeID: "n1"},
			fieldName:  "TargetNodeID",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			validate := validator.New()
			err := validate.Struct(tc.connection)
			require.Error(t, err)

			var validationErrors validator.ValidationErrors
			require.ErrorAs(t, err, &validationErrors)
			assert.Equal(t, tc.fieldName, validationErrors[0].Field())
		})
	}
}

func TestConnectionData_Branch(t *testing.T) {
	testCases := []struct {
		kind  string
		value bool
		ok    bool
	}{
		{kind: "true", value: true, ok: true},
		{kind: "yes", value: true, ok: true},
		{kind: "false", value: false, ok: true},
		{kind: "no", value: false, ok: true},
		{kind: "", value: false, ok: false},
		{kind: "maybe", value: false, ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.kind, func(t *testing.T) {
			value, ok := ConnectionData{Kind: tc.kind}.Branch()
			assert.Equal(t, tc.value, value)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestDiagramNode_Trigger(t *testing.T) {
	node := &DiagramNode{
		NodeID:   "t1",
		NodeType: NodeTypeTrigger,
		Data:     json.RawMessage(`{"events":["create","approve"],"mappingIds":["3"],"approvalMode":"all"}`),
	}

	data, err := node.Trigger()
	require.NoError(t, err)
	assert.True(t, data.HasEvent("create"))
	assert.True(t, data.HasMapping("3"))
	assert.False(t, data.HasMapping("4"))
	assert.True(t, data.IsApprovalGate())
	assert.Equal(t, ApprovalModeAll, data.Mode())
}

func TestDiagramNode_TriggerDefaultsToAnyMode(t *testing.T) {
	node := &DiagramNode{NodeID: "t1", NodeType: NodeTypeTrigger}

	data, err := node.Trigger()
	require.NoError(t, err)
	assert.Equal(t, ApprovalModeAny, data.Mode())
	assert.False(t, data.IsApprovalGate())
}

func TestDiagramNode_DecodeWrongType(t *testing.T) {
	node := &DiagramNode{NodeID: "d1", NodeType: NodeTypeDecision, Data: json.RawMessage(`{}`)}

	_, err := node.Send()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not send")
}

func TestDiagramNode_DecodeInvalidJSON(t *testing.T) {
	node := &DiagramNode{NodeID: "h1", NodeType: NodeTypeHuman, Data: json.RawMessage(`{"type":`)}

	_, err := node.Human()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode human data")
}

func TestNodeType_Annotation(t *testing.T) {
	assert.True(t, NodeTypeHuman.IsAnnotation())
	assert.True(t, NodeTypeComment.IsAnnotation())
	assert.False(t, NodeTypeSend.IsAnnotation())
	assert.False(t, NodeType("loop").Valid())
}

func TestValidateNodeData(t *testing.T) {
	testCases := []struct {
		name    string
		node    *DiagramNode
		wantErr string
	}{
		{
			name: "valid trigger",
			node: &DiagramNode{NodeID: "t", NodeType: NodeTypeTrigger, Data: json.RawMessage(`{"events":["create"],"mappingIds":["3"]}`)},
		},
		{
			name:    "trigger without events",
			node:    &DiagramNode{NodeID: "t", NodeType: NodeTypeTrigger, Data: json.RawMessage(`{"mappingIds":["3"]}`)},
			wantErr: "failed schema validation",
		},
		{
			name:    "send with unknown kind",
			node:    &DiagramNode{NodeID: "s", NodeType: NodeTypeSend, Data: json.RawMessage(`{"kinds":["sms"]}`)},
			wantErr: "failed schema validation",
		},
		{
			name: "decision with numeric condition",
			node: &DiagramNode{NodeID: "d", NodeType: NodeTypeDecision, Data: json.RawMessage(`{"conditionValue":5}`)},
		},
		{
			name: "end without data",
			node: &DiagramNode{NodeID: "e", NodeType: NodeTypeEnd},
		},
		{
			name:    "unsupported type",
			node:    &DiagramNode{NodeID: "x", NodeType: NodeType("delay")},
			wantErr: "unsupported type",
		},
		{
			name:    "invalid json",
			node:    &DiagramNode{NodeID: "h", NodeType: NodeTypeHuman, Data: json.RawMessage(`{`)},
			wantErr: "not valid JSON",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateNodeData(tc.node)
			if tc.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
