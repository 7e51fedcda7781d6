package graph_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dukex/flowstate/pkg/graph"
	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/persistence/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const onboarding = `
id: onboarding
name: Company onboarding
nodes:
  - id: start
    type: start
  - id: created
    type: trigger
    name: Company created
    data:
      events: [create]
      mappingIds: ["3"]
  - id: check
    type: decision
    data:
      conditionValue: Acme
      field: Name
  - id: notify
    type: send
    data:
      kinds: [email]
  - id: sales
    type: human
    data:
      type: role
      roleIds: [sales]
  - id: done
    type: end
connections:
  - source: start
    target: created
  - source: created
    target: check
  - id: acme
    source: check
    target: notify
    kind: "true"
  - source: sales
    target: notify
  - source: notify
    target: done
`

func TestLoader_Load(t *testing.T) {
	diagram, err := graph.NewLoader().Load(strings.NewReader(onboarding))
	require.NoError(t, err)

	assert.Equal(t, "onboarding", diagram.ID)
	assert.Equal(t, "Company onboarding", diagram.Name)
	require.Len(t, diagram.Nodes, 6)
	require.Len(t, diagram.Connections, 5)

	trigger := diagram.Nodes[1]
	assert.Equal(t, models.NodeTypeTrigger, trigger.NodeType)
	assert.Equal(t, "onboarding", trigger.DiagramID)

	data, err := trigger.Trigger()
	require.NoError(t, err)
	assert.Equal(t, []string{"create"}, data.Events)
	assert.Equal(t, []string{"3"}, data.MappingIDs)

	assert.Equal(t, "start-created-0", diagram.Connections[0].ID)
	assert.Equal(t, "acme", diagram.Connections[2].ID)
	assert.Equal(t, "true", diagram.Connections[2].Data.Kind)
}

func TestLoader_LoadAcceptsJSON(t *testing.T) {
	document := `{"id":"d","nodes":[{"id":"s","type":"start"},{"id":"e","type":"end"}],"connections":[{"source":"s","target":"e"}]}`

	diagram, err := graph.NewLoader().Load(strings.NewReader(document))
	require.NoError(t, err)
	assert.Len(t, diagram.Nodes, 2)
}

func TestLoader_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		document string
		contains string
	}{
		{
			name:     "missing id",
			document: "nodes: [{id: s, type: start}]",
			contains: "ID",
		},
		{
			name:     "no nodes",
			document: "id: d",
			contains: "Nodes",
		},
		{
			name:     "unknown node type",
			document: "id: d\nnodes: [{id: s, type: webhook}]",
			contains: `unsupported type "webhook"`,
		},
		{
			name:     "duplicate node",
			document: "id: d\nnodes: [{id: s, type: start}, {id: s, type: end}]",
			contains: `duplicate node id "s"`,
		},
		{
			name:     "dangling connection",
			document: "id: d\nnodes: [{id: s, type: start}]\nconnections: [{source: s, target: x}]",
			contains: "unknown node",
		},
		{
			name:     "bad branch kind",
			document: "id: d\nnodes: [{id: s, type: start}, {id: e, type: end}]\nconnections: [{source: s, target: e, kind: maybe}]",
			contains: "Kind",
		},
		{
			name:     "send without channels",
			document: "id: d\nnodes: [{id: n, type: send, data: {kinds: []}}]",
			contains: "schema validation",
		},
		{
			name:     "not yaml",
			document: "id: [",
			contains: "invalid diagram",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := graph.NewLoader().Load(strings.NewReader(tt.document))
			require.ErrorIs(t, err, graph.ErrInvalidDiagram)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := sqlite.NewPersistence(ctx, logger, filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	path := filepath.Join(t.TempDir(), "onboarding.yaml")
	require.NoError(t, os.WriteFile(path, []byte(onboarding), 0o600))

	diagram, err := graph.NewLoader().LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, graph.Import(ctx, store, diagram))

	nodes, err := store.Graph().Nodes(ctx, "onboarding")
	require.NoError(t, err)
	assert.Len(t, nodes, 6)

	outgoing, err := store.Graph().OutgoingConnections(ctx, "onboarding", "check")
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "notify", outgoing[0].TargetNodeID)

	diagram.Nodes = diagram.Nodes[:2]
	diagram.Connections = diagram.Connections[:1]
	require.NoError(t, graph.Import(ctx, store, diagram))

	nodes, err = store.Graph().Nodes(ctx, "onboarding")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}
