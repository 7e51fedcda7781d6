package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/flowstate/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	instancesStarted      metric.Int64Counter
	instancesCompleted    metric.Int64Counter
	nodeExecutions        metric.Int64Counter
	approvalsResolved     metric.Int64Counter
	notificationsEnqueued metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m   metrics
		err error
	)

	m.instancesStarted, err = meter.Int64Counter("flowstate.instances.started",
		metric.WithDescription("Workflow instances created by external triggers"))
	if err != nil {
		return nil, fmt.Errorf("failed to create instances started counter: %w", err)
	}

	m.instancesCompleted, err = meter.Int64Counter("flowstate.instances.completed",
		metric.WithDescription("Workflow instances that reached the completed status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create instances completed counter: %w", err)
	}

	m.nodeExecutions, err = meter.Int64Counter("flowstate.node.executions",
		metric.WithDescription("Node executions by node type"))
	if err != nil {
		return nil, fmt.Errorf("failed to create node executions counter: %w", err)
	}

	m.approvalsResolved, err = meter.Int64Counter("flowstate.approvals.resolved",
		metric.WithDescription("Approval gates resolved by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create approvals resolved counter: %w", err)
	}

	m.notificationsEnqueued, err = meter.Int64Counter("flowstate.notifications.enqueued",
		metric.WithDescription("Outbound notification tasks published by channel"))
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications enqueued counter: %w", err)
	}

	return &m, nil
}

func (m *metrics) nodeExecuted(ctx context.Context, nodeType models.NodeType) {
	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attribute.String("node_type", string(nodeType))))
}

func (m *metrics) approvalResolved(ctx context.Context, passed bool) {
	m.approvalsResolved.Add(ctx, 1, metric.WithAttributes(attribute.Bool("passed", passed)))
}

func (m *metrics) notificationEnqueued(ctx context.Context, channel models.Channel) {
	m.notificationsEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", string(channel))))
}
