package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/nodes/approval"
	"github.com/dukex/flowstate/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// fanOut schedules the outgoing connections of a completed node.
func (e *Engine) fanOut(ctx context.Context, w *unit, node *models.DiagramNode, state *models.NodeState) error {
	connections, err := w.outgoing(ctx, node)
	if err != nil {
		return err
	}

	w.enqueue(state, node, connections)

	return nil
}

// run drains the work-list, checks completion and writes the context back.
// Activations are processed in FIFO order, so the trace shows a breadth-first walk.
func (e *Engine) run(ctx context.Context, w *unit) error {
	steps := 0

	for {
		act, ok := w.next()
		if !ok {
			break
		}

		steps++
		if steps > e.maxSteps {
			return fmt.Errorf("%w: instance %s exceeded %d steps", ErrStepLimitExceeded, w.instance.ID, e.maxSteps)
		}

		err := e.step(ctx, w, act)
		if err != nil {
			return err
		}
	}

	err := e.checkCompletion(ctx, w)
	if err != nil {
		return err
	}

	return w.flush(ctx)
}

// step delivers one activation: it creates or reuses the target's node-state
// and runs the target's executor when the node is executable on arrival.
func (e *Engine) step(ctx context.Context, w *unit, act activation) error {
	node, err := w.tx.Graph().Node(ctx, w.instance.DiagramID, act.targetNodeID)
	if err != nil {
		return err
	}

	logger := e.logger.With(
		"instance_id", w.instance.ID,
		"node_id", node.NodeID,
		"node_type", node.NodeType,
	)

	if node.NodeType.IsAnnotation() {
		return nil
	}

	if !node.NodeType.Valid() {
		logger.WarnContext(ctx, "Unsupported node type, stopping branch")
		w.trace = append(w.trace, Step{NodeID: node.NodeID, NodeType: node.NodeType})

		return nil
	}

	state, err := w.tx.NodeStates().Find(ctx, w.instance.ID, node.NodeID)
	if err != nil {
		return err
	}

	execute := false

	if state == nil {
		state, err = e.arrive(ctx, w, node)
		if err != nil {
			return err
		}

		execute = state.Status == models.NodeStateStatusActive
	} else {
		execute = reentrant(node.NodeType, state)
	}

	record := Step{
		NodeID:      node.NodeID,
		NodeType:    node.NodeType,
		NodeStateID: state.ID,
		Status:      state.Status,
	}

	if !execute {
		logger.DebugContext(ctx, "Node reached, not executing", "node_state_id", state.ID, "status", state.Status)
		w.trace = append(w.trace, record)

		return nil
	}

	run, ok := e.executors[node.NodeType]
	if !ok {
		logger.WarnContext(ctx, "No executor for node type, stopping branch")
		w.trace = append(w.trace, record)

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute."+string(node.NodeType),
		attribute.String(otelhelper.InstanceIDKey, w.instance.ID),
		attribute.String(otelhelper.NodeIDKey, node.NodeID),
		attribute.String(otelhelper.NodeTypeKey, string(node.NodeType)),
		attribute.String(otelhelper.NodeStateIDKey, state.ID),
	)
	defer span.End()

	next, err := run.execute(ctx, e, w, act, node, state)
	if err != nil {
		otelhelper.RecordError(span, err)

		return fmt.Errorf("failed to execute %s node %s: %w", node.NodeType, node.NodeID, err)
	}

	e.metrics.nodeExecuted(ctx, node.NodeType)

	w.enqueue(state, node, next)

	record.Status = state.Status
	record.Executed = true
	record.FanOut = len(next)
	w.trace = append(w.trace, record)

	logger.DebugContext(ctx, "Node executed", "node_state_id", state.ID, "status", state.Status, "fan_out", len(next))

	return nil
}

// arrive creates the node-state of a node reached for the first time in the
// instance. Status and inputsRequired depend only on the node type.
func (e *Engine) arrive(ctx context.Context, w *unit, node *models.DiagramNode) (*models.NodeState, error) {
	now := e.now().UTC()
	state := &models.NodeState{
		ID:                 e.newID(),
		WorkflowInstanceID: w.instance.ID,
		NodeID:             node.NodeID,
		Status:             models.NodeStateStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var approvers []string

	switch node.NodeType {
	case models.NodeTypeAnd:
		count, err := w.tx.Graph().IncomingConnectionCount(ctx, node.DiagramID, node.NodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to count incoming connections of node %s: %w", node.NodeID, err)
		}

		state.Status = models.NodeStateStatusActive
		state.InputsRequired = count
	case models.NodeTypeOr:
		state.Status = models.NodeStateStatusActive
		state.InputsRequired = 1
	case models.NodeTypeDecision, models.NodeTypeSend, models.NodeTypeEnd:
		state.Status = models.NodeStateStatusActive
	case models.NodeTypeTrigger:
		data, err := node.Trigger()
		if err != nil {
			return nil, err
		}

		switch {
		case data.IsApprovalGate():
			approvers, err = e.resolveApprovers(ctx, w, node, data)
			if err != nil {
				return nil, err
			}

			state.Status = models.NodeStateStatusWaiting
			state.InputsRequired = approval.RequiredInputs(data.Mode(), len(approvers))
		case e.bypassed(ctx, w, node, data):
			state.Status = models.NodeStateStatusActive
		default:
			state.Status = models.NodeStateStatusWaiting
			state.InputsRequired = 1
		}
	case models.NodeTypeStart, models.NodeTypeHuman, models.NodeTypeComment:
	}

	err := w.tx.NodeStates().Create(ctx, state)
	if err != nil {
		return nil, err
	}

	for _, userID := range approvers {
		err = w.tx.Approvals().Create(ctx, &models.NodeApproval{
			ID:          e.newID(),
			NodeStateID: state.ID,
			UserID:      userID,
			Status:      models.ApprovalStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return nil, err
		}
	}

	return state, nil
}

// bypassed reports whether a trigger reached mid-graph must be passed through
// instead of waited on: external triggers and triggers no event can match.
func (e *Engine) bypassed(ctx context.Context, w *unit, node *models.DiagramNode, data models.TriggerData) bool {
	logger := e.logger.With("instance_id", w.instance.ID, "node_id", node.NodeID)

	if len(data.Events) == 0 {
		logger.WarnContext(ctx, "Internal trigger has no events and can never resume, bypassing it")

		return true
	}

	external, err := e.isExternal(ctx, w.tx.Graph(), node)
	if err != nil {
		logger.WarnContext(ctx, "Failed to classify trigger, waiting on it", "error", err)

		return false
	}

	if external {
		logger.WarnContext(ctx, "External trigger found mid-graph, bypassing it")
	}

	return external
}

// reentrant reports whether a later arrival at an existing node-state runs
// the executor again.
func reentrant(nodeType models.NodeType, state *models.NodeState) bool {
	switch nodeType {
	case models.NodeTypeAnd:
		return state.Status != models.NodeStateStatusCompleted
	case models.NodeTypeOr:
		// Every arrival fans out again, so successors may run once per input.
		return true
	case models.NodeTypeDecision:
		return state.Status == models.NodeStateStatusActive
	default:
		return false
	}
}
