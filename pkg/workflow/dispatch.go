package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dukex/flowstate/pkg/events"
	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/otelhelper"
	"github.com/dukex/flowstate/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// TriggerRule decides which trigger nodes start new instances.
type TriggerRule string

const (
	// TriggerRuleStartEdge treats a trigger as external when a start node connects to it.
	TriggerRuleStartEdge TriggerRule = "start-edge"
	// TriggerRuleNoIncoming treats a trigger as external when nothing but start
	// and annotation nodes connect to it.
	TriggerRuleNoIncoming TriggerRule = "no-incoming"
)

// Valid reports whether r is a known rule.
func (r TriggerRule) Valid() bool {
	return r == TriggerRuleStartEdge || r == TriggerRuleNoIncoming
}

// TriggerRequest is an external event addressed to the trigger nodes of every diagram.
type TriggerRequest struct {
	EventName string         `json:"event_name" validate:"required"`
	Payload   map[string]any `json:"payload"`
	UserID    string         `json:"user_id"    validate:"required"`
	MappingID string         `json:"mapping_id" validate:"required"`
}

// TriggerResult tells what a trigger did. NoOp is set when the event was a
// duplicate start or found nothing to resume.
type TriggerResult struct {
	InstanceID string `json:"instance_id,omitempty"`
	Started    bool   `json:"started"`
	Resumed    bool   `json:"resumed"`
	NoOp       bool   `json:"no_op"`
	Trace      []Step `json:"trace,omitempty"`
}

// StartOrResumeTrigger starts a new instance when the matching trigger is
// external, or resumes the instance waiting on it when it is internal. The
// whole cascade runs in one transaction.
func (e *Engine) StartOrResumeTrigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	err := e.validate.Struct(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.StartOrResumeTrigger",
		attribute.String(otelhelper.EventNameKey, req.EventName),
		attribute.String(otelhelper.MappingIDKey, req.MappingID),
		attribute.String(otelhelper.UserIDKey, req.UserID),
	)
	defer span.End()

	logger := e.logger.With("event_name", req.EventName, "mapping_id", req.MappingID, "user_id", req.UserID)

	var (
		result TriggerResult
		work   *unit
	)

	err = e.persistence.InTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		result = TriggerResult{}
		work = newUnit(tx, e.now().UTC())

		trigger, err := e.matchTrigger(ctx, tx.Graph(), req)
		if err != nil {
			return err
		}

		external, err := e.isExternal(ctx, tx.Graph(), trigger)
		if err != nil {
			return err
		}

		if external {
			return e.start(ctx, work, trigger, req, &result)
		}

		return e.resume(ctx, work, trigger, req, &result)
	})
	if persistence.IsDuplicateRunningInstance(err) {
		logger.InfoContext(ctx, "Instance already running for subject, ignoring trigger")

		return &TriggerResult{NoOp: true}, nil
	}

	if err != nil {
		otelhelper.RecordError(span, err)
		logger.ErrorContext(ctx, "Trigger failed", "error", err)

		return nil, err
	}

	if result.NoOp {
		return &result, nil
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, result.InstanceID))
	result.Trace = work.trace

	e.publish(ctx, work)

	logger.InfoContext(ctx, "Trigger processed",
		"instance_id", result.InstanceID,
		"started", result.Started,
		"resumed", result.Resumed,
		"steps", len(result.Trace),
	)

	return &result, nil
}

// matchTrigger finds the single trigger node listening to the event for the mapping.
func (e *Engine) matchTrigger(ctx context.Context, graph persistence.GraphRepository, req TriggerRequest) (*models.DiagramNode, error) {
	nodes, err := graph.TriggerNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load trigger nodes: %w", err)
	}

	var matches []*models.DiagramNode

	for _, node := range nodes {
		data, err := node.Trigger()
		if err != nil {
			e.logger.WarnContext(ctx, "Skipping trigger node with unreadable data",
				"diagram_id", node.DiagramID, "node_id", node.NodeID, "error", err)

			continue
		}

		if data.HasEvent(req.EventName) && data.HasMapping(req.MappingID) {
			matches = append(matches, node)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &TriggerError{Op: "match", EventName: req.EventName, MappingID: req.MappingID, Err: ErrTriggerNotFound}
	case 1:
		return matches[0], nil
	default:
		return nil, &TriggerError{Op: "match", EventName: req.EventName, MappingID: req.MappingID, Err: ErrMultipleTriggerMatches}
	}
}

// isExternal classifies a trigger node according to the configured rule.
func (e *Engine) isExternal(ctx context.Context, graph persistence.GraphRepository, trigger *models.DiagramNode) (bool, error) {
	incoming, err := graph.IncomingConnections(ctx, trigger.DiagramID, trigger.NodeID)
	if err != nil {
		return false, fmt.Errorf("failed to load incoming connections of trigger %s: %w", trigger.NodeID, err)
	}

	fromStart := false
	fromOther := false

	for _, connection := range incoming {
		source, err := graph.Node(ctx, trigger.DiagramID, connection.SourceNodeID)
		if err != nil {
			return false, fmt.Errorf("failed to load node %s: %w", connection.SourceNodeID, err)
		}

		switch {
		case source.NodeType == models.NodeTypeStart:
			fromStart = true
		case !source.NodeType.IsAnnotation():
			fromOther = true
		}
	}

	if e.rule == TriggerRuleNoIncoming {
		return !fromOther, nil
	}

	return fromStart, nil
}

// start creates a new instance for an external trigger and runs its first cascade.
func (e *Engine) start(ctx context.Context, w *unit, trigger *models.DiagramNode, req TriggerRequest, result *TriggerResult) error {
	key := models.StartKey{
		DiagramID: trigger.DiagramID,
		MappingID: req.MappingID,
		ObjectID:  objectID(req.Payload),
		StartedBy: req.UserID,
	}

	existing, err := w.tx.Instances().FindRunning(ctx, key)
	if err != nil {
		return err
	}

	if existing != nil {
		return persistence.NewInstanceError("Start", existing.ID, persistence.ErrDuplicateRunningInstance)
	}

	now := e.now().UTC()
	instance := &models.WorkflowInstance{
		ID:             e.newID(),
		DiagramID:      trigger.DiagramID,
		Status:         models.InstanceStatusActive,
		Context:        models.NewContext(),
		StartMappingID: key.MappingID,
		StartObjectID:  key.ObjectID,
		StartedBy:      key.StartedBy,
		StartedAt:      now,
	}

	err = w.tx.Instances().Create(ctx, instance)
	if err != nil {
		return err
	}

	w.instance = instance

	state := &models.NodeState{
		ID:                 e.newID(),
		WorkflowInstanceID: instance.ID,
		NodeID:             trigger.NodeID,
		Status:             models.NodeStateStatusCompleted,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = w.tx.NodeStates().Create(ctx, state)
	if err != nil {
		return err
	}

	w.apply(state.ID, models.TriggerFragment{
		EventName: req.EventName,
		MappingID: req.MappingID,
		Payload:   req.Payload,
	})
	w.trace = append(w.trace, Step{
		NodeID:      trigger.NodeID,
		NodeType:    trigger.NodeType,
		NodeStateID: state.ID,
		Status:      state.Status,
		Executed:    true,
	})

	w.emit(events.InstanceStarted{
		BaseEvent:     events.NewBaseEvent(e.newID(), events.InstanceStartedEvent, instance.ID, instance.DiagramID, now),
		TriggerNodeID: trigger.NodeID,
		EventName:     req.EventName,
		MappingID:     key.MappingID,
		ObjectID:      key.ObjectID,
		StartedBy:     key.StartedBy,
	})

	e.logger.InfoContext(ctx, "Starting workflow instance",
		"instance_id", instance.ID,
		"diagram_id", instance.DiagramID,
		"trigger_node_id", trigger.NodeID,
		"object_id", key.ObjectID,
	)

	err = e.fanOut(ctx, w, trigger, state)
	if err != nil {
		return err
	}

	result.InstanceID = instance.ID
	result.Started = true

	return e.run(ctx, w)
}

// resume completes the waiting node-state of an internal trigger and continues
// the instance holding it.
func (e *Engine) resume(ctx context.Context, w *unit, trigger *models.DiagramNode, req TriggerRequest, result *TriggerResult) error {
	logger := e.logger.With("diagram_id", trigger.DiagramID, "trigger_node_id", trigger.NodeID)

	data, err := trigger.Trigger()
	if err != nil {
		return err
	}

	if data.IsApprovalGate() {
		logger.WarnContext(ctx, "Approval gates resolve through approvals, ignoring trigger")

		result.NoOp = true

		return nil
	}

	state, err := w.tx.NodeStates().FindWaiting(ctx, trigger.DiagramID, req.MappingID, objectID(req.Payload), trigger.NodeID)
	if err != nil {
		return err
	}

	if state == nil {
		logger.WarnContext(ctx, "No instance is waiting on internal trigger")

		result.NoOp = true

		return nil
	}

	instance, err := w.tx.Instances().Lock(ctx, state.WorkflowInstanceID)
	if err != nil {
		return err
	}

	w.instance = instance

	completed, err := w.tx.NodeStates().Complete(ctx, state.ID, w.now)
	if err != nil {
		return err
	}

	if !completed {
		logger.InfoContext(ctx, "Trigger already resumed", "node_state_id", state.ID)

		result.NoOp = true

		return nil
	}

	state.Status = models.NodeStateStatusCompleted

	w.apply(state.ID, models.TriggerFragment{
		EventName: req.EventName,
		MappingID: req.MappingID,
		Payload:   req.Payload,
	})
	w.trace = append(w.trace, Step{
		NodeID:      trigger.NodeID,
		NodeType:    trigger.NodeType,
		NodeStateID: state.ID,
		Status:      state.Status,
		Executed:    true,
	})

	err = e.activate(ctx, w)
	if err != nil {
		return err
	}

	w.emit(events.InstanceResumed{
		BaseEvent:     events.NewBaseEvent(e.newID(), events.InstanceResumedEvent, instance.ID, instance.DiagramID, e.now().UTC()),
		TriggerNodeID: trigger.NodeID,
		NodeStateID:   state.ID,
		EventName:     req.EventName,
	})

	logger.InfoContext(ctx, "Resuming workflow instance", "instance_id", instance.ID, "node_state_id", state.ID)

	err = e.fanOut(ctx, w, trigger, state)
	if err != nil {
		return err
	}

	result.InstanceID = instance.ID
	result.Resumed = true

	return e.run(ctx, w)
}

// activate moves a waiting instance back to active before new fan-out.
func (e *Engine) activate(ctx context.Context, w *unit) error {
	changed, err := w.tx.Instances().Transition(ctx, w.instance.ID, models.InstanceStatusActive, nil, models.InstanceStatusWaiting)
	if err != nil {
		return err
	}

	if changed {
		w.instance.Status = models.InstanceStatusActive
	}

	return nil
}

// objectID extracts the business object id from a trigger payload.
func objectID(payload map[string]any) string {
	for _, key := range []string{"Id", "id", "ID"} {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}

		return scalarString(value)
	}

	return ""
}

// scalarString renders a decoded JSON scalar. Numbers decoded as float64 are
// written in plain decimal form so 1000000 and "1000000" give the same key.
func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
