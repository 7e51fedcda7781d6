package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/flowstate/pkg/events"
	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/nodes/approval"
	"github.com/dukex/flowstate/pkg/otelhelper"
	"github.com/dukex/flowstate/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// ApprovalRequest is one approver's decision on a human-approval gate.
type ApprovalRequest struct {
	NodeStateID string `json:"node_state_id" validate:"required"`
	UserID      string `json:"user_id"       validate:"required"`
	Approved    bool   `json:"approved"`
	Comment     string `json:"comment"`
}

// ApprovalResult tells whether the decision resolved the gate. Ignored is set
// when the gate had already been resolved.
type ApprovalResult struct {
	InstanceID string `json:"instance_id"`
	Resolved   bool   `json:"resolved"`
	Passed     bool   `json:"passed"`
	Ignored    bool   `json:"ignored"`
	Trace      []Step `json:"trace,omitempty"`
}

// SubmitApproval records a decision and, once the gate's quorum is reached,
// completes the gate and continues the instance.
func (e *Engine) SubmitApproval(ctx context.Context, req ApprovalRequest) (*ApprovalResult, error) {
	err := e.validate.Struct(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.SubmitApproval",
		attribute.String(otelhelper.NodeStateIDKey, req.NodeStateID),
		attribute.String(otelhelper.UserIDKey, req.UserID),
	)
	defer span.End()

	logger := e.logger.With("node_state_id", req.NodeStateID, "user_id", req.UserID)

	var (
		result ApprovalResult
		work   *unit
	)

	err = e.persistence.InTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		result = ApprovalResult{}
		work = newUnit(tx, e.now().UTC())

		return e.approve(ctx, work, req, &result)
	})
	if err != nil {
		otelhelper.RecordError(span, err)
		logger.ErrorContext(ctx, "Approval failed", "error", err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, result.InstanceID))
	result.Trace = work.trace

	e.publish(ctx, work)

	logger.InfoContext(ctx, "Approval recorded",
		"instance_id", result.InstanceID,
		"approved", req.Approved,
		"resolved", result.Resolved,
		"passed", result.Passed,
		"ignored", result.Ignored,
	)

	return &result, nil
}

func (e *Engine) approve(ctx context.Context, w *unit, req ApprovalRequest, result *ApprovalResult) error {
	state, err := w.tx.NodeStates().ByID(ctx, req.NodeStateID)
	if err != nil {
		return err
	}

	instance, err := w.tx.Instances().Lock(ctx, state.WorkflowInstanceID)
	if err != nil {
		return err
	}

	w.instance = instance
	result.InstanceID = instance.ID

	// Read again now that the instance is locked.
	state, err = w.tx.NodeStates().ByID(ctx, req.NodeStateID)
	if err != nil {
		return err
	}

	if state.Status == models.NodeStateStatusCompleted || !instance.Status.Running() {
		result.Ignored = true

		return nil
	}

	node, err := w.tx.Graph().Node(ctx, instance.DiagramID, state.NodeID)
	if err != nil {
		return err
	}

	if node.NodeType != models.NodeTypeTrigger {
		return &persistence.NodeStateError{Op: "Approve", NodeStateID: state.ID, Err: persistence.ErrApprovalNotFound}
	}

	data, err := node.Trigger()
	if err != nil {
		return err
	}

	if !data.IsApprovalGate() {
		return &persistence.NodeStateError{Op: "Approve", NodeStateID: state.ID, Err: persistence.ErrApprovalNotFound}
	}

	status := models.ApprovalStatusRejected
	if req.Approved {
		status = models.ApprovalStatusApproved
	}

	err = w.tx.Approvals().Decide(ctx, state.ID, req.UserID, status, req.Comment, w.now)
	if err != nil {
		return err
	}

	_, _, err = w.tx.NodeStates().IncrementInputs(ctx, state.ID, w.now)
	if err != nil {
		return err
	}

	approvals, err := w.tx.Approvals().ListByNodeState(ctx, state.ID)
	if err != nil {
		return err
	}

	mode := data.Mode()

	outcome := approval.Evaluate(mode, approval.Count(approvals))
	if !outcome.Resolved {
		return nil
	}

	result.Resolved = true
	result.Passed = outcome.Passed

	err = complete(ctx, w, state)
	if err != nil {
		return err
	}

	now := e.now().UTC()

	w.apply(state.ID, models.ApprovalFragment{
		ApprovalResult: outcome.Passed,
		ApprovedCount:  outcome.Tally.Approved,
		RejectedCount:  outcome.Tally.Rejected,
		TotalCount:     outcome.Tally.Total(),
		ApprovalMode:   mode,
		ProcessedAt:    now,
		Comment:        req.Comment,
		UserID:         req.UserID,
	})
	w.apply(state.ID, models.OutcomeFragment{Result: outcome.Passed})
	w.trace = append(w.trace, Step{
		NodeID:      node.NodeID,
		NodeType:    node.NodeType,
		NodeStateID: state.ID,
		Status:      state.Status,
		Executed:    true,
	})

	w.emit(events.ApprovalResolved{
		BaseEvent:     events.NewBaseEvent(e.newID(), events.ApprovalResolvedEvent, instance.ID, instance.DiagramID, now),
		NodeStateID:   state.ID,
		Passed:        outcome.Passed,
		ApprovalMode:  mode,
		ApprovedCount: outcome.Tally.Approved,
		RejectedCount: outcome.Tally.Rejected,
		TotalCount:    outcome.Tally.Total(),
	})

	err = e.activate(ctx, w)
	if err != nil {
		return err
	}

	err = e.fanOut(ctx, w, node, state)
	if err != nil {
		return err
	}

	return e.run(ctx, w)
}

// resolveApprovers returns the eligible approvers of a gate: users listed on
// connected personal human nodes plus members of connected role nodes. When
// they yield nobody, the gate's inline human block is used instead.
func (e *Engine) resolveApprovers(ctx context.Context, w *unit, node *models.DiagramNode, data models.TriggerData) ([]string, error) {
	rules, err := w.humans(ctx, node)
	if err != nil {
		return nil, err
	}

	approvers, err := e.expand(ctx, rules)
	if err != nil {
		return nil, err
	}

	if len(approvers) == 0 && data.Human != nil {
		approvers, err = e.expand(ctx, []models.HumanData{*data.Human})
		if err != nil {
			return nil, err
		}
	}

	if len(approvers) == 0 {
		e.logger.WarnContext(ctx, "Approval gate has no eligible approvers and will never resolve",
			"instance_id", w.instance.ID, "node_id", node.NodeID)
	}

	return approvers, nil
}

func (e *Engine) expand(ctx context.Context, rules []models.HumanData) ([]string, error) {
	var personal, roles []string

	for _, rule := range rules {
		switch rule.Type {
		case models.HumanTypePersonal:
			personal = append(personal, rule.UserIDs...)
		case models.HumanTypeRole:
			roles = append(roles, rule.RoleIDs...)
		}
	}

	var members []string

	if len(roles) > 0 {
		users, err := e.directory.UsersByRole(ctx, roles)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role members: %w", err)
		}

		for _, user := range users {
			members = append(members, user.ID)
		}
	}

	return approval.Approvers(personal, members), nil
}
