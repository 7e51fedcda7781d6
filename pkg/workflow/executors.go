package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/flowstate/pkg/events"
	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/nodes/decision"
)

// executor runs one node type. It returns the connections to fan out along;
// returning none stops the path.
type executor interface {
	execute(ctx context.Context, e *Engine, w *unit, act activation, node *models.DiagramNode, state *models.NodeState) ([]*models.Connection, error)
}

// executableTypes are the node types whose node-states can become active.
var executableTypes = []models.NodeType{
	models.NodeTypeTrigger,
	models.NodeTypeDecision,
	models.NodeTypeAnd,
	models.NodeTypeOr,
	models.NodeTypeSend,
	models.NodeTypeEnd,
}

func newExecutors() map[models.NodeType]executor {
	return map[models.NodeType]executor{
		models.NodeTypeTrigger:  triggerExecutor{},
		models.NodeTypeDecision: decisionExecutor{},
		models.NodeTypeAnd:      joinExecutor{join: models.JoinTypeAnd},
		models.NodeTypeOr:       joinExecutor{join: models.JoinTypeOr},
		models.NodeTypeSend:     sendExecutor{},
		models.NodeTypeEnd:      endExecutor{},
	}
}

// complete marks a node-state completed, updating the in-memory copy.
func complete(ctx context.Context, w *unit, state *models.NodeState) error {
	_, err := w.tx.NodeStates().Complete(ctx, state.ID, w.now)
	if err != nil {
		return err
	}

	state.Status = models.NodeStateStatusCompleted

	return nil
}

type triggerExecutor struct{}

// execute passes through a bypassed trigger.
func (triggerExecutor) execute(ctx context.Context, _ *Engine, w *unit, _ activation, node *models.DiagramNode, state *models.NodeState) ([]*models.Connection, error) {
	err := complete(ctx, w, state)
	if err != nil {
		return nil, err
	}

	return w.outgoing(ctx, node)
}

type decisionExecutor struct{}

func (decisionExecutor) execute(ctx context.Context, e *Engine, w *unit, act activation, node *models.DiagramNode, state *models.NodeState) ([]*models.Connection, error) {
	data, err := node.Decision()
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("instance_id", w.instance.ID, "node_id", node.NodeID, "node_state_id", state.ID)

	upstream := w.fragment(act.from.ID)

	input, found := upstream.InputValue(data.Field)
	if !found && data.Field != "" {
		input, _ = w.root().Field(data.Field)
	}

	result, err := decision.Evaluate(data.ConditionType, input, data.ConditionValue)
	if err != nil {
		logger.WarnContext(ctx, "Unsupported condition, stopping branch", "error", err)

		setErr := w.tx.NodeStates().SetStatus(ctx, state.ID, models.NodeStateStatusError, w.now)
		if setErr != nil {
			return nil, setErr
		}

		state.Status = models.NodeStateStatusError

		return nil, nil
	}

	if decision.Blocked(result, upstream) {
		logger.DebugContext(ctx, "Decision held back by unfinished join", "result", result)

		return nil, nil
	}

	err = e.completePredecessors(ctx, w, node, act.from.ID)
	if err != nil {
		return nil, err
	}

	err = complete(ctx, w, state)
	if err != nil {
		return nil, err
	}

	conditionType := data.ConditionType
	if conditionType == "" {
		conditionType = decision.ConditionEquals
	}

	w.apply(state.ID, models.DecisionFragment{
		ConditionValue: data.ConditionValue,
		Result:         result,
		ConditionType:  conditionType,
		ProcessedAt:    e.now().UTC(),
	})

	connections, err := w.outgoing(ctx, node)
	if err != nil {
		return nil, err
	}

	branches := decision.Branches(connections, result)
	if len(branches) == 0 {
		logger.DebugContext(ctx, "Decision has no branch for result", "result", result)
	}

	return branches, nil
}

// completePredecessors completes the active node-states feeding node, other
// than the one that delivered the current input.
func (e *Engine) completePredecessors(ctx context.Context, w *unit, node *models.DiagramNode, exceptID string) error {
	incoming, err := w.tx.Graph().IncomingConnections(ctx, node.DiagramID, node.NodeID)
	if err != nil {
		return fmt.Errorf("failed to load incoming connections of node %s: %w", node.NodeID, err)
	}

	for _, connection := range incoming {
		predecessor, err := w.tx.NodeStates().Find(ctx, w.instance.ID, connection.SourceNodeID)
		if err != nil {
			return err
		}

		if predecessor == nil || predecessor.ID == exceptID || predecessor.Status != models.NodeStateStatusActive {
			continue
		}

		err = complete(ctx, w, predecessor)
		if err != nil {
			return err
		}
	}

	return nil
}

type joinExecutor struct {
	join models.JoinType
}

// execute counts one input. The join fans out on every input and completes on
// the last one; a downstream decision reads lastInput to know whether to act.
func (j joinExecutor) execute(ctx context.Context, _ *Engine, w *unit, act activation, node *models.DiagramNode, state *models.NodeState) ([]*models.Connection, error) {
	received, required, err := w.tx.NodeStates().IncrementInputs(ctx, state.ID, w.now)
	if err != nil {
		return nil, err
	}

	state.InputsReceived = received
	lastInput := received >= required

	fragment := models.JoinFragment{
		CheckType:     j.join,
		LastInput:     lastInput,
		InputReceived: received,
	}

	if upstream := w.fragment(act.from.ID); upstream != nil {
		fragment.Result = upstream.Result
		fragment.Value = upstream.Value
	}

	w.apply(state.ID, fragment)

	if lastInput {
		err = complete(ctx, w, state)
		if err != nil {
			return nil, err
		}
	}

	return w.outgoing(ctx, node)
}

type endExecutor struct{}

func (endExecutor) execute(ctx context.Context, e *Engine, w *unit, _ activation, _ *models.DiagramNode, state *models.NodeState) ([]*models.Connection, error) {
	err := complete(ctx, w, state)
	if err != nil {
		return nil, err
	}

	return nil, e.finish(ctx, w)
}

// finish moves the instance to completed and records the completion event.
func (e *Engine) finish(ctx context.Context, w *unit) error {
	now := e.now().UTC()

	changed, err := w.tx.Instances().Transition(ctx, w.instance.ID, models.InstanceStatusCompleted, &now,
		models.InstanceStatusActive, models.InstanceStatusWaiting)
	if err != nil {
		return err
	}

	if !changed {
		return nil
	}

	w.instance.Status = models.InstanceStatusCompleted
	w.instance.CompletedAt = &now

	w.emit(events.InstanceCompleted{
		BaseEvent:   events.NewBaseEvent(e.newID(), events.InstanceCompletedEvent, w.instance.ID, w.instance.DiagramID, now),
		CompletedAt: now,
	})

	e.logger.InfoContext(ctx, "Workflow instance completed", "instance_id", w.instance.ID)

	return nil
}
