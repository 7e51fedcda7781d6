package sqlbase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/persistence"
)

// ApprovalRepository stores the approvers of human-approval gates.
type ApprovalRepository struct {
	conn   conn
	logger *slog.Logger
}

// Create inserts one approver row. Re-inserting the same user for the same
// node-state is ignored.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.NodeApproval) error {
	_, err := r.conn.exec(ctx, `
		INSERT INTO node_approvals (id, node_state_id, user_id, status, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (node_state_id, user_id) DO NOTHING`,
		approval.ID,
		approval.NodeStateID,
		approval.UserID,
		string(approval.Status),
		approval.Comment,
		approval.CreatedAt,
		approval.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create approval for user %s: %w", approval.UserID, err)
	}

	return nil
}

// ListByNodeState returns every approver row of a node-state ordered by user.
func (r *ApprovalRepository) ListByNodeState(ctx context.Context, nodeStateID string) ([]*models.NodeApproval, error) {
	rows, err := r.conn.query(ctx, `
		SELECT id, node_state_id, user_id, status, comment, created_at, updated_at
		FROM node_approvals
		WHERE node_state_id = $1
		ORDER BY user_id`, nodeStateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals of node state %s: %w", nodeStateID, err)
	}

	defer func() { _ = rows.Close() }()

	approvals := make([]*models.NodeApproval, 0)

	for rows.Next() {
		var (
			approval models.NodeApproval
			status   string
		)

		err := rows.Scan(
			&approval.ID,
			&approval.NodeStateID,
			&approval.UserID,
			&status,
			&approval.Comment,
			&approval.CreatedAt,
			&approval.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		approval.Status = models.ApprovalStatus(status)
		approvals = append(approvals, &approval)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

// Decide records the decision of a still pending approver.
func (r *ApprovalRepository) Decide(
	ctx context.Context,
	nodeStateID, userID string,
	status models.ApprovalStatus,
	comment string,
	at time.Time,
) error {
	result, err := r.conn.exec(ctx, `
		UPDATE node_approvals
		SET status = $3, comment = $4, updated_at = $5
		WHERE node_state_id = $1 AND user_id = $2 AND status = 'pending'`,
		nodeStateID, userID, string(status), comment, at.UTC())
	if err != nil {
		return &persistence.NodeStateError{Op: "Decide", NodeStateID: nodeStateID, Err: err}
	}

	return requireRow(result, &persistence.NodeStateError{Op: "Decide", NodeStateID: nodeStateID, Err: persistence.ErrApprovalNotFound})
}
