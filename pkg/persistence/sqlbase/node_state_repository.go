package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/persistence"
)

const nodeStateColumns = `id, workflow_instance_id, node_id, status, inputs_required, inputs_received,
	created_at, updated_at`

// NodeStateRepository stores the node-states of workflow instances.
type NodeStateRepository struct {
	conn   conn
	logger *slog.Logger
}

// Create inserts a node-state. A second node-state for the same node in the
// same instance fails with ErrNodeStateExists.
func (r *NodeStateRepository) Create(ctx context.Context, state *models.NodeState) error {
	_, err := r.conn.exec(ctx, `
		INSERT INTO node_states (`+nodeStateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		state.ID,
		state.WorkflowInstanceID,
		state.NodeID,
		string(state.Status),
		state.InputsRequired,
		state.InputsReceived,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if r.conn.dialect.uniqueViolation(err) {
		return &persistence.NodeStateError{Op: "Create", NodeStateID: state.ID, Err: persistence.ErrNodeStateExists}
	}

	if err != nil {
		return &persistence.NodeStateError{Op: "Create", NodeStateID: state.ID, Err: err}
	}

	return nil
}

// ByID returns one node-state.
func (r *NodeStateRepository) ByID(ctx context.Context, id string) (*models.NodeState, error) {
	row := r.conn.queryRow(ctx, `
		SELECT `+nodeStateColumns+`
		FROM node_states
		WHERE id = $1`, id)

	state, err := scanNodeState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &persistence.NodeStateError{Op: "ByID", NodeStateID: id, Err: persistence.ErrNodeStateNotFound}
	}

	if err != nil {
		return nil, &persistence.NodeStateError{Op: "ByID", NodeStateID: id, Err: err}
	}

	return state, nil
}

// Find returns the node-state of nodeID within an instance, or nil.
func (r *NodeStateRepository) Find(ctx context.Context, instanceID, nodeID string) (*models.NodeState, error) {
	row := r.conn.queryRow(ctx, `
		SELECT `+nodeStateColumns+`
		FROM node_states
		WHERE workflow_instance_id = $1 AND node_id = $2`, instanceID, nodeID)

	state, err := scanNodeState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find node state of node %s: %w", nodeID, err)
	}

	return state, nil
}

// ListByInstance returns the node-states of an instance in creation order.
func (r *NodeStateRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.NodeState, error) {
	rows, err := r.conn.query(ctx, `
		SELECT `+nodeStateColumns+`
		FROM node_states
		WHERE workflow_instance_id = $1
		ORDER BY created_at, id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node states of instance %s: %w", instanceID, err)
	}

	defer func() { _ = rows.Close() }()

	states := make([]*models.NodeState, 0)

	for rows.Next() {
		state, err := scanNodeState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node state: %w", err)
		}

		states = append(states, state)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating node states: %w", err)
	}

	return states, nil
}

// FindWaiting returns the waiting node-state of nodeID in the running instance
// of a diagram started for the given subject, or nil.
func (r *NodeStateRepository) FindWaiting(ctx context.Context, diagramID, mappingID, objectID, nodeID string) (*models.NodeState, error) {
	row := r.conn.queryRow(ctx, `
		SELECT ns.id, ns.workflow_instance_id, ns.node_id, ns.status, ns.inputs_required, ns.inputs_received,
			ns.created_at, ns.updated_at
		FROM node_states ns
		JOIN workflow_instances wi ON wi.id = ns.workflow_instance_id
		WHERE wi.diagram_id = $1
			AND wi.start_mapping_id = $2
			AND wi.start_object_id = $3
			AND wi.status IN ('active', 'waiting')
			AND ns.node_id = $4
			AND ns.status = 'waiting'
		ORDER BY wi.started_at
		LIMIT 1`, diagramID, mappingID, objectID, nodeID)

	state, err := scanNodeState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find waiting node state of node %s: %w", nodeID, err)
	}

	return state, nil
}

// Complete marks a node-state completed.
func (r *NodeStateRepository) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.conn.exec(ctx, `
		UPDATE node_states
		SET status = 'completed', updated_at = $2
		WHERE id = $1 AND status <> 'completed'`, id, at.UTC())
	if err != nil {
		return false, &persistence.NodeStateError{Op: "Complete", NodeStateID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, &persistence.NodeStateError{Op: "Complete", NodeStateID: id, Err: err}
	}

	return affected > 0, nil
}

// SetStatus overwrites the status of a node-state.
func (r *NodeStateRepository) SetStatus(ctx context.Context, id string, status models.NodeStateStatus, at time.Time) error {
	result, err := r.conn.exec(ctx, `
		UPDATE node_states
		SET status = $2, updated_at = $3
		WHERE id = $1`, id, string(status), at.UTC())
	if err != nil {
		return &persistence.NodeStateError{Op: "SetStatus", NodeStateID: id, Err: err}
	}

	return requireRow(result, &persistence.NodeStateError{Op: "SetStatus", NodeStateID: id, Err: persistence.ErrNodeStateNotFound})
}

// IncrementInputs increments inputs_received without exceeding inputs_required.
func (r *NodeStateRepository) IncrementInputs(ctx context.Context, id string, at time.Time) (int, int, error) {
	var received, required int

	err := r.conn.queryRow(ctx, `
		UPDATE node_states
		SET inputs_received = CASE
				WHEN inputs_received < inputs_required THEN inputs_received + 1
				ELSE inputs_received
			END,
			updated_at = $2
		WHERE id = $1
		RETURNING inputs_received, inputs_required`, id, at.UTC()).Scan(&received, &required)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, &persistence.NodeStateError{Op: "IncrementInputs", NodeStateID: id, Err: persistence.ErrNodeStateNotFound}
	}

	if err != nil {
		return 0, 0, &persistence.NodeStateError{Op: "IncrementInputs", NodeStateID: id, Err: err}
	}

	return received, required, nil
}

// Counts returns how many node-states of the instance are unfinished and how many are active.
func (r *NodeStateRepository) Counts(ctx context.Context, instanceID string) (persistence.NodeStateCounts, error) {
	var counts persistence.NodeStateCounts

	err := r.conn.queryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status NOT IN ('completed', 'error') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0)
		FROM node_states
		WHERE workflow_instance_id = $1`, instanceID).Scan(&counts.Unfinished, &counts.Active)
	if err != nil {
		return counts, fmt.Errorf("failed to count node states of instance %s: %w", instanceID, err)
	}

	return counts, nil
}

func scanNodeState(row scanner) (*models.NodeState, error) {
	var (
		state  models.NodeState
		status string
	)

	err := row.Scan(
		&state.ID,
		&state.WorkflowInstanceID,
		&state.NodeID,
		&status,
		&state.InputsRequired,
		&state.InputsReceived,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	state.Status = models.NodeStateStatus(status)

	return &state, nil
}
