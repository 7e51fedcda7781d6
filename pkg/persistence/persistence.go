// Package persistence provides the storage abstraction for diagrams and the engine's state machine tables.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/flowstate/pkg/models"
)

// Persistence is the relational store acting as the single source of truth.
type Persistence interface {
	Repositories

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error

	Directory() DirectoryRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories interface {
	Graph() GraphRepository
	Instances() InstanceRepository
	NodeStates() NodeStateRepository
	Approvals() ApprovalRepository
	Notifications() NotificationRepository
}

// GraphRepository gives read access to diagrams. SaveDiagram exists for
// import and seeding only; the engine never writes diagrams.
type GraphRepository interface {
	Node(ctx context.Context, diagramID, nodeID string) (*models.DiagramNode, error)
	Nodes(ctx context.Context, diagramID string) ([]*models.DiagramNode, error)
	TriggerNodes(ctx context.Context) ([]*models.DiagramNode, error)
	OutgoingConnections(ctx context.Context, diagramID, nodeID string) ([]*models.Connection, error)
	IncomingConnections(ctx context.Context, diagramID, nodeID string) ([]*models.Connection, error)
	IncomingConnectionCount(ctx context.Context, diagramID, nodeID string) (int, error)
	SaveDiagram(ctx context.Context, diagram *models.Diagram) error
}

// InstanceRepository manages workflow instance rows.
type InstanceRepository interface {
	// Create inserts a new instance. It fails with ErrDuplicateRunningInstance
	// when a running instance already exists for the same start key.
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	ByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	// Lock reads the instance and holds a row lock until the transaction ends.
	Lock(ctx context.Context, id string) (*models.WorkflowInstance, error)
	// FindRunning returns the running instance for a start key, or nil.
	FindRunning(ctx context.Context, key models.StartKey) (*models.WorkflowInstance, error)
	SaveContext(ctx context.Context, id string, instanceContext *models.Context) error
	// Transition moves the instance to status `to` when its current status is
	// one of `from`. It reports whether a row changed.
	Transition(ctx context.Context, id string, to models.InstanceStatus, completedAt *time.Time, from ...models.InstanceStatus) (bool, error)
}

// NodeStateCounts summarises the node-states of one instance.
type NodeStateCounts struct {
	Unfinished int
	Active     int
}

// NodeStateRepository manages node-state rows.
type NodeStateRepository interface {
	Create(ctx context.Context, state *models.NodeState) error
	ByID(ctx context.Context, id string) (*models.NodeState, error)
	// Find returns the node-state of a node within an instance, or nil.
	Find(ctx context.Context, instanceID, nodeID string) (*models.NodeState, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*models.NodeState, error)
	// FindWaiting returns the waiting node-state of nodeID held by the running
	// instance of the diagram for the given subject, or nil.
	FindWaiting(ctx context.Context, diagramID, mappingID, objectID, nodeID string) (*models.NodeState, error)
	// Complete marks the node-state completed at the given time. It reports false
	// when it already was.
	Complete(ctx context.Context, id string, at time.Time) (bool, error)
	SetStatus(ctx context.Context, id string, status models.NodeStateStatus, at time.Time) error
	// IncrementInputs atomically increments inputs_received, capped at
	// inputs_required, and reads both counters back.
	IncrementInputs(ctx context.Context, id string, at time.Time) (received, required int, err error)
	Counts(ctx context.Context, instanceID string) (NodeStateCounts, error)
}

// ApprovalRepository manages the approver rows of human-approval gates.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *models.NodeApproval) error
	ListByNodeState(ctx context.Context, nodeStateID string) ([]*models.NodeApproval, error)
	// Decide records the decision of a pending approver. It fails with
	// ErrApprovalNotFound when the user has no pending approval for the node-state.
	Decide(ctx context.Context, nodeStateID, userID string, status models.ApprovalStatus, comment string, at time.Time) error
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.InAppNotification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]*models.InAppNotification, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*models.InAppNotification, error)
}

// DirectoryUser is a directory entry as stored by the seeding side.
type DirectoryUser struct {
	ID          string
	Email       string
	DisplayName string
	RoleIDs     []string
}

// DirectoryRepository reads users, roles and display names.
type DirectoryRepository interface {
	UsersByRole(ctx context.Context, roleIDs []string) ([]models.User, error)
	UsersByID(ctx context.Context, ids []string) ([]models.User, error)
	DisplayName(ctx context.Context, userID string) (string, error)
	EventDisplayName(ctx context.Context, eventName string) (string, error)
	MappingDisplayName(ctx context.Context, mappingID string) (string, error)

	SaveUser(ctx context.Context, user DirectoryUser) error
	SaveEvent(ctx context.Context, eventName, displayName string) error
	SaveMapping(ctx context.Context, mappingID, displayName string) error
}
