// Package web provides the HTTP intake for trigger events and approval decisions.
package web

import (
	"github.com/dukex/flowstate/pkg/workflow"
)

// TriggerRequest is the body of POST /triggers.
type TriggerRequest struct {
	EventName string         `json:"event_name" validate:"required"`
	Payload   map[string]any `json:"payload"`
	UserID    string         `json:"user_id"    validate:"required"`
	MappingID string         `json:"mapping_id" validate:"required"`
}

func (r TriggerRequest) toEngine() workflow.TriggerRequest {
	return workflow.TriggerRequest{
		EventName: r.EventName,
		Payload:   r.Payload,
		UserID:    r.UserID,
		MappingID: r.MappingID,
	}
}

// ApprovalRequest is the body of POST /node-states/:id/approvals.
type ApprovalRequest struct {
	UserID   string `json:"user_id"  validate:"required"`
	Approved *bool  `json:"approved" validate:"required"`
	Comment  string `json:"comment"  validate:"max=2000"`
}

func (r ApprovalRequest) toEngine(nodeStateID string) workflow.ApprovalRequest {
	return workflow.ApprovalRequest{
		NodeStateID: nodeStateID,
		UserID:      r.UserID,
		Approved:    *r.Approved,
		Comment:     r.Comment,
	}
}

// DiagramImportResponse is returned after a diagram import.
type DiagramImportResponse struct {
	ID          string `json:"id"`
	Nodes       int    `json:"nodes"`
	Connections int    `json:"connections"`
}
