package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/persistence"
)

const nodeColumns = "diagram_id, node_id, node_type, name, data"

const connectionColumns = "diagram_id, id, source_node_id, target_node_id, data"

// GraphRepository reads diagram nodes and connections.
type GraphRepository struct {
	conn   conn
	logger *slog.Logger
}

// Node returns one node of a diagram.
func (r *GraphRepository) Node(ctx context.Context, diagramID, nodeID string) (*models.DiagramNode, error) {
	row := r.conn.queryRow(ctx, `
		SELECT `+nodeColumns+`
		FROM diagram_nodes
		WHERE diagram_id = $1 AND node_id = $2`, diagramID, nodeID)

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &persistence.NodeError{Op: "Node", DiagramID: diagramID, NodeID: nodeID, Err: persistence.ErrNodeNotFound}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get node %s: %w", nodeID, err)
	}

	return node, nil
}

// Nodes returns every node of a diagram ordered by node id.
func (r *GraphRepository) Nodes(ctx context.Context, diagramID string) ([]*models.DiagramNode, error) {
	rows, err := r.conn.query(ctx, `
		SELECT `+nodeColumns+`
		FROM diagram_nodes
		WHERE diagram_id = $1
		ORDER BY node_id`, diagramID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes of diagram %s: %w", diagramID, err)
	}

	return collectNodes(rows)
}

// TriggerNodes returns the trigger nodes of every diagram.
func (r *GraphRepository) TriggerNodes(ctx context.Context) ([]*models.DiagramNode, error) {
	rows, err := r.conn.query(ctx, `
		SELECT `+nodeColumns+`
		FROM diagram_nodes
		WHERE node_type = $1
		ORDER BY diagram_id, node_id`, string(models.NodeTypeTrigger))
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger nodes: %w", err)
	}

	return collectNodes(rows)
}

// OutgoingConnections returns connections leaving nodeID.
func (r *GraphRepository) OutgoingConnections(ctx context.Context, diagramID, nodeID string) ([]*models.Connection, error) {
	rows, err := r.conn.query(ctx, `
		SELECT `+connectionColumns+`
		FROM diagram_connections
		WHERE diagram_id = $1 AND source_node_id = $2
		ORDER BY id`, diagramID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outgoing connections of node %s: %w", nodeID, err)
	}

	return collectConnections(rows)
}

// IncomingConnections returns connections arriving at nodeID.
func (r *GraphRepository) IncomingConnections(ctx context.Context, diagramID, nodeID string) ([]*models.Connection, error) {
	rows, err := r.conn.query(ctx, `
		SELECT `+connectionColumns+`
		FROM diagram_connections
		WHERE diagram_id = $1 AND target_node_id = $2
		ORDER BY id`, diagramID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query incoming connections of node %s: %w", nodeID, err)
	}

	return collectConnections(rows)
}

// IncomingConnectionCount counts connections arriving at nodeID.
func (r *GraphRepository) IncomingConnectionCount(ctx context.Context, diagramID, nodeID string) (int, error) {
	var count int

	err := r.conn.queryRow(ctx, `
		SELECT COUNT(*)
		FROM diagram_connections
		WHERE diagram_id = $1 AND target_node_id = $2`, diagramID, nodeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count incoming connections of node %s: %w", nodeID, err)
	}

	return count, nil
}

// SaveDiagram replaces the diagram with the given nodes and connections.
func (r *GraphRepository) SaveDiagram(ctx context.Context, diagram *models.Diagram) error {
	_, err := r.conn.exec(ctx, `
		INSERT INTO diagrams (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`, diagram.ID, diagram.Name)
	if err != nil {
		return fmt.Errorf("failed to save diagram %s: %w", diagram.ID, err)
	}

	_, err = r.conn.exec(ctx, "DELETE FROM diagram_connections WHERE diagram_id = $1", diagram.ID)
	if err != nil {
		return fmt.Errorf("failed to clear connections of diagram %s: %w", diagram.ID, err)
	}

	_, err = r.conn.exec(ctx, "DELETE FROM diagram_nodes WHERE diagram_id = $1", diagram.ID)
	if err != nil {
		return fmt.Errorf("failed to clear nodes of diagram %s: %w", diagram.ID, err)
	}

	for _, node := range diagram.Nodes {
		data := string(node.Data)
		if data == "" {
			data = "{}"
		}

		_, err = r.conn.exec(ctx, `
			INSERT INTO diagram_nodes (diagram_id, node_id, node_type, name, data)
			VALUES ($1, $2, $3, $4, $5)`,
			diagram.ID, node.NodeID, string(node.NodeType), node.Name, data)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.NodeID, err)
		}
	}

	for _, connection := range diagram.Connections {
		data, err := json.Marshal(connection.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal connection %s data: %w", connection.ID, err)
		}

		_, err = r.conn.exec(ctx, `
			INSERT INTO diagram_connections (diagram_id, id, source_node_id, target_node_id, data)
			VALUES ($1, $2, $3, $4, $5)`,
			diagram.ID, connection.ID, connection.SourceNodeID, connection.TargetNodeID, string(data))
		if err != nil {
			return fmt.Errorf("failed to save connection %s: %w", connection.ID, err)
		}
	}

	r.logger.InfoContext(ctx, "Saved diagram",
		"diagram_id", diagram.ID,
		"nodes", len(diagram.Nodes),
		"connections", len(diagram.Connections))

	return nil
}

func scanNode(row scanner) (*models.DiagramNode, error) {
	var (
		node     models.DiagramNode
		nodeType string
		data     []byte
	)

	err := row.Scan(&node.DiagramID, &node.NodeID, &nodeType, &node.Name, &data)
	if err != nil {
		return nil, err
	}

	node.NodeType = models.NodeType(nodeType)
	node.Data = json.RawMessage(data)

	return &node, nil
}

func collectNodes(rows *sql.Rows) ([]*models.DiagramNode, error) {
	defer func() { _ = rows.Close() }()

	nodes := make([]*models.DiagramNode, 0)

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}

		nodes = append(nodes, node)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

func scanConnection(row scanner) (*models.Connection, error) {
	var (
		connection models.Connection
		data       []byte
	)

	err := row.Scan(&connection.DiagramID, &connection.ID, &connection.SourceNodeID, &connection.TargetNodeID, &data)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		err = json.Unmarshal(data, &connection.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal connection %s data: %w", connection.ID, err)
		}
	}

	return &connection, nil
}

func collectConnections(rows *sql.Rows) ([]*models.Connection, error) {
	defer func() { _ = rows.Close() }()

	connections := make([]*models.Connection, 0)

	for rows.Next() {
		connection, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		connections = append(connections, connection)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}
