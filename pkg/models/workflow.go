package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"    // Executable node-states may still exist
	InstanceStatusWaiting   InstanceStatus = "waiting"   // Only pending or waiting node-states remain
	InstanceStatusCompleted InstanceStatus = "completed" // Every node-state finished
	InstanceStatusError     InstanceStatus = "error"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Running reports whether the instance can still make progress.
func (s InstanceStatus) Running() bool {
	return s == InstanceStatusActive || s == InstanceStatusWaiting
}

// StartKey identifies the logical subject of an instance. At most one running
// instance may exist per key.
type StartKey struct {
	DiagramID string `json:"diagram_id"`
	MappingID string `json:"mapping_id"`
	ObjectID  string `json:"object_id"`
	StartedBy string `json:"started_by"`
}

// WorkflowInstance is one execution of a diagram.
type WorkflowInstance struct {
	ID             string         `json:"id"`
	DiagramID      string         `json:"diagram_id"`
	Status         InstanceStatus `json:"status"`
	Context        *Context       `json:"context"`
	StartMappingID string         `json:"start_mapping_id"`
	StartObjectID  string         `json:"start_object_id"`
	StartedBy      string         `json:"started_by"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// Key returns the start key of the instance.
func (w *WorkflowInstance) Key() StartKey {
	return StartKey{
		DiagramID: w.DiagramID,
		MappingID: w.StartMappingID,
		ObjectID:  w.StartObjectID,
		StartedBy: w.StartedBy,
	}
}

// NodeStateStatus defines the possible states of a visited node.
type NodeStateStatus string

const (
	NodeStateStatusPending   NodeStateStatus = "pending"
	NodeStateStatusActive    NodeStateStatus = "active"
	NodeStateStatusWaiting   NodeStateStatus = "waiting"
	NodeStateStatusCompleted NodeStateStatus = "completed"
	NodeStateStatusError     NodeStateStatus = "error"
)

// Finished reports whether the node-state is terminal.
func (s NodeStateStatus) Finished() bool {
	return s == NodeStateStatusCompleted || s == NodeStateStatusError
}

// NodeState records one node having been visited within one instance.
type NodeState struct {
	ID                 string          `json:"id"`
	WorkflowInstanceID string          `json:"workflow_instance_id"`
	NodeID             string          `json:"node_id"`
	Status             NodeStateStatus `json:"status"`
	InputsRequired     int             `json:"inputs_required"`
	InputsReceived     int             `json:"inputs_received"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ApprovalStatus is the decision recorded by one approver.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// NodeApproval is one eligible approver of a human-approval gate.
type NodeApproval struct {
	ID          string         `json:"id"`
	NodeStateID string         `json:"node_state_id"`
	UserID      string         `json:"user_id"`
	Status      ApprovalStatus `json:"status"`
	Comment     string         `json:"comment,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// User is a directory entry resolved as a recipient or approver.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Notification is what the engine decided to send, to whom, on which channel.
type Notification struct {
	Channel      Channel        `json:"channel"`
	InstanceID   string         `json:"instance_id"`
	NodeStateID  string         `json:"node_state_id"`
	SenderID     string         `json:"sender_id"`
	SenderName   string         `json:"sender_name"`
	NeedsAction  bool           `json:"needs_action"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	Payload      map[string]any `json:"payload,omitempty"`
	RecipientIDs []string       `json:"recipient_ids"`
	Recipients   []User         `json:"recipients"`
}

// InAppNotification is a persisted in-app notification row for one recipient.
type InAppNotification struct {
	ID          string    `json:"id"`
	InstanceID  string    `json:"instance_id"`
	NodeStateID string    `json:"node_state_id"`
	RecipientID string    `json:"recipient_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	NeedsAction bool      `json:"needs_action"`
	CreatedAt   time.Time `json:"created_at"`
}
