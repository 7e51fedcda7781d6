// Package kafka consumes trigger requests published on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/dukex/flowstate/pkg/workflow"
)

// Handler receives decoded trigger requests.
type Handler interface {
	StartOrResumeTrigger(ctx context.Context, req workflow.TriggerRequest) (*workflow.TriggerResult, error)
}

// Consumer reads JSON encoded workflow.TriggerRequest values from a topic.
// Messages of one partition are handled in order. A message is committed
// once the engine accepted or rejected it; transient failures leave it
// uncommitted so that the next session redelivers it.
type Consumer struct {
	cfg      Config
	handler  Handler
	group    sarama.ConsumerGroup
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	cfg = cfg.withDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Consumer{
		cfg:     cfg,
		handler: handler,
		logger: logger.With(
			"module", "kafka_trigger",
			"topic", cfg.Topic,
			"consumer_group", cfg.ConsumerGroup,
		),
	}, nil
}

// Start joins the consumer group and consumes in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Starting Kafka trigger", "brokers", c.cfg.Brokers)

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.ConsumerGroup, c.cfg.sarama())
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to create Kafka consumer group", "error", err)

		return fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	c.group = group

	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)

	go c.consuming(ctx)
	go c.monitorErrors(ctx)

	return nil
}

// Stop leaves the consumer group and waits for the in-flight message.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error

	c.stopOnce.Do(func() {
		c.logger.InfoContext(ctx, "Stopping Kafka trigger")

		if c.cancel != nil {
			c.cancel()
		}

		c.wg.Wait()

		if c.group != nil {
			err = c.group.Close()
			if err != nil {
				c.logger.ErrorContext(ctx, "Error closing Kafka consumer", "error", err)
			}
		}
	})

	return err
}

func (c *Consumer) consuming(ctx context.Context) {
	defer c.wg.Done()

	handler := &consumerGroupHandler{consumer: c}

	for {
		err := c.group.Consume(ctx, []string{c.cfg.Topic}, handler)
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "Kafka trigger context cancelled")

			return
		}

		if err != nil {
			c.logger.ErrorContext(ctx, "Kafka consumer error", "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(kafkaRetryInterval):
			}
		}
	}
}

func (c *Consumer) monitorErrors(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}

			if err != nil {
				c.logger.ErrorContext(ctx, "Kafka consumer group error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Process hands one message to the handler. It reports whether the message
// is done with and can be committed.
func (c *Consumer) Process(ctx context.Context, message *sarama.ConsumerMessage) (bool, error) {
	logger := c.logger.With("partition", message.Partition, "offset", message.Offset)

	var req workflow.TriggerRequest

	err := json.Unmarshal(message.Value, &req)
	if err != nil {
		logger.WarnContext(ctx, "Dropping undecodable trigger request", "error", err)

		return true, nil
	}

	result, err := c.handler.StartOrResumeTrigger(ctx, req)

	switch {
	case err == nil:
		logger.DebugContext(ctx, "Trigger request processed",
			"instance_id", result.InstanceID,
			"started", result.Started,
			"resumed", result.Resumed,
			"no_op", result.NoOp,
		)

		return true, nil
	case workflow.IsInvalid(err), workflow.IsNotFound(err), workflow.IsConflict(err):
		logger.WarnContext(ctx, "Trigger request rejected",
			"event_name", req.EventName,
			"mapping_id", req.MappingID,
			"error", err,
		)

		return true, nil
	default:
		return false, err
	}
}

type consumerGroupHandler struct {
	consumer *Consumer
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.InfoContext(session.Context(), "Kafka consumer group session started")

	return nil
}

func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.InfoContext(session.Context(), "Kafka consumer group session ended")

	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			done, err := h.consumer.Process(ctx, message)
			if err != nil {
				return fmt.Errorf("trigger request at offset %d: %w", message.Offset, err)
			}

			if done {
				session.MarkMessage(message, "")
			}
		}
	}
}
