package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var stringList = map[string]any{
	"type":  "array",
	"items": map[string]any{"type": "string", "minLength": 1},
}

var humanSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"type":    map[string]any{"type": "string", "enum": []any{"personal", "role"}},
		"userIds": stringList,
		"roleIds": stringList,
	},
	"required": []any{"type"},
}

// nodeDataSchemas holds the JSON schema of the data blob for each node type.
// Types without an entry accept any object.
var nodeDataSchemas = map[NodeType]map[string]any{
	NodeTypeTrigger: {
		"type": "object",
		"properties": map[string]any{
			"events":       stringList,
			"mappingIds":   stringList,
			"approvalMode": map[string]any{"type": "string", "enum": []any{"any", "all"}},
			"human":        humanSchema,
		},
		"required": []any{"events"},
	},
	NodeTypeDecision: {
		"type": "object",
		"properties": map[string]any{
			"conditionValue": map[string]any{"type": []any{"string", "number", "boolean", "null"}},
			"conditionType":  map[string]any{"type": "string"},
			"field":          map[string]any{"type": "string"},
		},
		"required": []any{"conditionValue"},
	},
	NodeTypeSend: {
		"type": "object",
		"properties": map[string]any{
			"kinds": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string", "enum": []any{"inapp", "email"}},
				"minItems": 1,
			},
			"title":   map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
		},
		"required": []any{"kinds"},
	},
	NodeTypeHuman: humanSchema,
}

// NodeDataSchema returns the JSON schema for a node type's data, or nil.
func NodeDataSchema(nodeType NodeType) map[string]any {
	return nodeDataSchemas[nodeType]
}

// ValidateNodeData checks the data blob of a node against its type's schema.
func ValidateNodeData(node *DiagramNode) error {
	if !node.NodeType.Valid() {
		return fmt.Errorf("node %s has unsupported type %q", node.NodeID, node.NodeType)
	}

	schema, ok := nodeDataSchemas[node.NodeType]
	if !ok {
		return nil
	}

	data := node.Data
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}

	var document any

	err := json.Unmarshal(data, &document)
	if err != nil {
		return fmt.Errorf("node %s data is not valid JSON: %w", node.NodeID, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("failed to validate node %s data: %w", node.NodeID, err)
	}

	if !result.Valid() {
		var problems []string
		for _, resultError := range result.Errors() {
			problems = append(problems, resultError.String())
		}

		return fmt.Errorf("node %s data failed schema validation: %s", node.NodeID, strings.Join(problems, "; "))
	}

	return nil
}
