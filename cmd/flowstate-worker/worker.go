// Package main provides the Flowstate worker: it consumes queued trigger
// requests and delivers outbound notifications.
package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/flowstate/pkg/eventbus"
	"github.com/dukex/flowstate/pkg/notifier"
	"github.com/dukex/flowstate/pkg/triggers/kafka"
	"github.com/dukex/flowstate/pkg/triggers/queue"
)

type Worker struct {
	eventBus eventbus.EventBus
	consumer *queue.Consumer
	topic    *kafka.Consumer
	notifier *notifier.Notifier
	logger   *slog.Logger
}

func NewWorker(
	eventBus eventbus.EventBus,
	consumer *queue.Consumer,
	notifier *notifier.Notifier,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		eventBus: eventBus,
		consumer: consumer,
		notifier: notifier,
		logger:   logger,
	}
}

// WithKafkaTrigger additionally consumes trigger requests from a Kafka topic.
func (w *Worker) WithKafkaTrigger(consumer *kafka.Consumer) *Worker {
	w.topic = consumer

	return w
}

// Run blocks until ctx is cancelled, then drains the consumer and pending deliveries.
func (w *Worker) Run(ctx context.Context) error {
	err := w.notifier.Register(w.eventBus)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.consumer.Start(ctx)

	stopCtx := context.WithoutCancel(ctx)

	if w.topic != nil {
		err = w.topic.Start(ctx)
		if err != nil {
			return errors.Join(err, w.consumer.Stop(stopCtx), w.notifier.Close())
		}
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-ctx.Done()

	w.logger.Info("Shutting down worker...")

	errs := []error{w.consumer.Stop(stopCtx)}

	if w.topic != nil {
		errs = append(errs, w.topic.Stop(stopCtx))
	}

	errs = append(errs, w.notifier.Close())

	return errors.Join(errs...)
}
