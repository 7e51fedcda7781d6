// Package queue feeds trigger requests pushed on a Redis list into the workflow engine.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowstate/pkg/workflow"
	redis "github.com/redis/go-redis/v9"
)

// Handler runs one trigger request. *workflow.Engine implements it.
type Handler interface {
	StartOrResumeTrigger(ctx context.Context, req workflow.TriggerRequest) (*workflow.TriggerResult, error)
}

// Consumer pops trigger requests with BLPOP and hands them to the engine one
// at a time, so requests for the same subject keep their queue order.
type Consumer struct {
	cfg        Config
	client     redis.UniversalClient
	handler    Handler
	logger     *slog.Logger
	ownsClient bool

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewConsumer builds a consumer on an existing client.
func NewConsumer(client redis.UniversalClient, cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	cfg = cfg.withDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Consumer{
		cfg:     cfg,
		client:  client,
		handler: handler,
		stopCh:  make(chan struct{}),
		logger: logger.With(
			"module", "queue_consumer",
			"queue", cfg.Queue,
		),
	}, nil
}

// Enqueue pushes a trigger request onto queue.
func Enqueue(ctx context.Context, client redis.UniversalClient, queue string, req workflow.TriggerRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode trigger request: %w", err)
	}

	return client.RPush(ctx, queue, body).Err()
}

// Start launches the consume loop.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.InfoContext(ctx, "Starting queue consumer")

	c.wg.Add(1)

	go c.consume(ctx)
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			c.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := c.Poll(ctx)
			if err != nil && ctx.Err() == nil {
				c.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

// Poll waits up to the poll timeout for one message and processes it. It
// returns nil when the queue stayed empty.
func (c *Consumer) Poll(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, c.cfg.PollTimeout, c.cfg.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	return c.process(ctx, result[1])
}

func (c *Consumer) process(ctx context.Context, message string) error {
	var req workflow.TriggerRequest

	err := json.Unmarshal([]byte(message), &req)
	if err != nil {
		c.logger.WarnContext(ctx, "Dropping undecodable trigger request", "error", err)

		return c.deadLetter(ctx, message)
	}

	logger := c.logger.With("event_name", req.EventName, "mapping_id", req.MappingID)

	result, err := c.handler.StartOrResumeTrigger(ctx, req)

	switch {
	case err == nil:
		logger.DebugContext(ctx, "Trigger request processed",
			"instance_id", result.InstanceID,
			"started", result.Started,
			"resumed", result.Resumed,
			"no_op", result.NoOp,
		)

		return nil
	case workflow.IsInvalid(err), workflow.IsNotFound(err), workflow.IsConflict(err):
		logger.WarnContext(ctx, "Trigger request rejected", "error", err)

		return c.deadLetter(ctx, message)
	default:
		// Transient failures go back to the tail of the queue.
		pushErr := c.client.RPush(ctx, c.cfg.Queue, message).Err()
		if pushErr != nil {
			return fmt.Errorf("failed to requeue trigger request after %w: %w", err, pushErr)
		}

		return err
	}
}

func (c *Consumer) deadLetter(ctx context.Context, message string) error {
	if c.cfg.DeadLetter == "" {
		return nil
	}

	err := c.client.RPush(ctx, c.cfg.DeadLetter, message).Err()
	if err != nil {
		return fmt.Errorf("failed to dead-letter message: %w", err)
	}

	return nil
}

// Stop ends the consume loop and waits for the in-flight message.
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Stopping queue consumer")

	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()

	if c.ownsClient {
		err := c.client.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
