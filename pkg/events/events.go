// Package events defines the events published after a workflow transaction commits.
package events

import (
	"time"

	"github.com/dukex/flowstate/pkg/models"
)

type EventType string

// Topic carries every workflow event.
const Topic = "flowstate.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle events.
	InstanceStartedEvent   EventType = "workflow.instance.started"
	InstanceResumedEvent   EventType = "workflow.instance.resumed"
	InstanceCompletedEvent EventType = "workflow.instance.completed"

	// Human approval events.
	ApprovalResolvedEvent EventType = "workflow.approval.resolved"

	// Outbound notification tasks.
	NotificationRequestedEvent EventType = "notification.requested"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	DiagramID  string         `json:"diagram_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the common fields of an event.
func NewBaseEvent(id string, eventType EventType, instanceID, diagramID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  at,
		InstanceID: instanceID,
		DiagramID:  diagramID,
	}
}

type InstanceStarted struct {
	BaseEvent

	TriggerNodeID string `json:"trigger_node_id"`
	EventName     string `json:"event_name"`
	MappingID     string `json:"mapping_id"`
	ObjectID      string `json:"object_id"`
	StartedBy     string `json:"started_by"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceResumed struct {
	BaseEvent

	TriggerNodeID string `json:"trigger_node_id"`
	NodeStateID   string `json:"node_state_id"`
	EventName     string `json:"event_name"`
}

func (e InstanceResumed) GetType() EventType {
	return InstanceResumedEvent
}

type InstanceCompleted struct {
	BaseEvent

	CompletedAt time.Time `json:"completed_at"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type ApprovalResolved struct {
	BaseEvent

	NodeStateID   string              `json:"node_state_id"`
	Passed        bool                `json:"passed"`
	ApprovalMode  models.ApprovalMode `json:"approval_mode"`
	ApprovedCount int                 `json:"approved_count"`
	RejectedCount int                 `json:"rejected_count"`
	TotalCount    int                 `json:"total_count"`
}

func (e ApprovalResolved) GetType() EventType {
	return ApprovalResolvedEvent
}

// NotificationRequested asks the notifier worker to deliver one notification
// on a non in-app channel.
type NotificationRequested struct {
	BaseEvent

	Notification models.Notification `json:"notification"`
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}
