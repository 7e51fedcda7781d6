// Package workflow drives workflow instances through their diagrams: it starts
// and resumes instances from trigger events, executes nodes, resolves human
// approvals and keeps instance status current.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowstate/pkg/directory"
	"github.com/dukex/flowstate/pkg/eventbus"
	"github.com/dukex/flowstate/pkg/events"
	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/dukex/flowstate/pkg/workflow"

	// DefaultMaxSteps bounds the activations processed for one external call.
	DefaultMaxSteps = 10000
)

// Engine executes workflow instances against a transactional store. It keeps
// no instance state in memory and is safe for concurrent use.
type Engine struct {
	persistence persistence.Persistence
	directory   directory.Store
	publisher   eventbus.EventPublisher
	executors   map[models.NodeType]executor
	metrics     *metrics
	validate    *validator.Validate

	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	rule     TriggerRule
	maxSteps int
	now      func() time.Time
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDirectory sets where recipients, approvers and display names are resolved.
// It defaults to the persistence directory.
func WithDirectory(store directory.Store) Option {
	return func(e *Engine) {
		e.directory = store
	}
}

// WithPublisher sets where committed events and outbound notification tasks go.
// Without a publisher they are dropped.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithTriggerRule sets how trigger nodes are classified as external or internal.
func WithTriggerRule(rule TriggerRule) Option {
	return func(e *Engine) {
		e.rule = rule
	}
}

// WithMaxSteps bounds the activations processed for one external call.
func WithMaxSteps(steps int) Option {
	return func(e *Engine) {
		e.maxSteps = steps
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTracer sets the tracer; the global tracer provider is used otherwise.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithMeter sets the meter; the global meter provider is used otherwise.
func WithMeter(meter metric.Meter) Option {
	return func(e *Engine) {
		e.meter = meter
	}
}

// New creates an engine on top of p.
func New(p persistence.Persistence, opts ...Option) (*Engine, error) {
	e := &Engine{
		persistence: p,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      slog.Default(),
		rule:        TriggerRuleStartEdge,
		maxSteps:    DefaultMaxSteps,
		now:         time.Now,
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.directory == nil {
		e.directory = p.Directory()
	}

	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}

	if e.meter == nil {
		e.meter = otel.Meter(instrumentationName)
	}

	if e.maxSteps <= 0 {
		e.maxSteps = DefaultMaxSteps
	}

	if !e.rule.Valid() {
		return nil, fmt.Errorf("unknown trigger rule %q", e.rule)
	}

	e.logger = e.logger.With("module", "workflow_engine")

	m, err := newMetrics(e.meter)
	if err != nil {
		return nil, err
	}

	e.metrics = m
	e.executors = newExecutors()

	for _, nodeType := range executableTypes {
		if _, ok := e.executors[nodeType]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingExecutor, nodeType)
		}
	}

	return e, nil
}

// InstanceDetails is an instance together with the rows the engine recorded for it.
type InstanceDetails struct {
	Instance      *models.WorkflowInstance    `json:"instance"`
	NodeStates    []*models.NodeState         `json:"node_states"`
	Notifications []*models.InAppNotification `json:"notifications"`
}

// Instance returns an instance with its node-states and in-app notifications.
func (e *Engine) Instance(ctx context.Context, id string) (*InstanceDetails, error) {
	instance, err := e.persistence.Instances().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	states, err := e.persistence.NodeStates().ListByInstance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list node states of instance %s: %w", id, err)
	}

	notifications, err := e.persistence.Notifications().ListByInstance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications of instance %s: %w", id, err)
	}

	return &InstanceDetails{
		Instance:      instance,
		NodeStates:    states,
		Notifications: notifications,
	}, nil
}

// publish records metrics for committed events and hands them to the
// publisher. Failures are logged only; the transaction that produced the
// events has already committed.
func (e *Engine) publish(ctx context.Context, w *unit) {
	if w == nil || len(w.outbox) == 0 {
		return
	}

	for _, event := range w.outbox {
		switch ev := event.(type) {
		case events.InstanceStarted:
			e.metrics.instancesStarted.Add(ctx, 1)
		case events.InstanceCompleted:
			e.metrics.instancesCompleted.Add(ctx, 1)
		case events.ApprovalResolved:
			e.metrics.approvalResolved(ctx, ev.Passed)
		}
	}

	if e.publisher == nil {
		e.logger.DebugContext(ctx, "No publisher configured, dropping events", "count", len(w.outbox))

		return
	}

	for _, event := range w.outbox {
		err := e.publisher.Publish(ctx, w.instance.ID, event)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to publish event",
				"instance_id", w.instance.ID,
				"event_type", event.GetType(),
				"error", err,
			)

			continue
		}

		if requested, ok := event.(events.NotificationRequested); ok {
			e.metrics.notificationEnqueued(ctx, requested.Notification.Channel)
		}
	}
}
