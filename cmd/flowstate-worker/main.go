package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowstate/pkg/cmd"
	"github.com/dukex/flowstate/pkg/directory"
	"github.com/dukex/flowstate/pkg/log"
	"github.com/dukex/flowstate/pkg/notifier"
	"github.com/dukex/flowstate/pkg/otelhelper"
	"github.com/dukex/flowstate/pkg/triggers/kafka"
	"github.com/dukex/flowstate/pkg/triggers/queue"
	"github.com/dukex/flowstate/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	defaults := notifier.DefaultConfig()

	command := &cli.Command{
		Name:                  "flowstate-worker",
		EnableShellCompletion: true,
		Usage:                 "Process queued trigger requests and deliver notifications",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://... or sqlite://path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka brokers of the event bus and the trigger intake",
				Value:   []string{"localhost:9092"},
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address of the trigger queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password of the trigger queue",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database of the trigger queue",
				Sources: cli.EnvVars("REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "Redis list holding trigger requests",
				Value:   "flowstate:triggers",
				Sources: cli.EnvVars("TRIGGER_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "dead-letter-queue",
				Usage:   "Redis list receiving rejected trigger requests (disabled when empty)",
				Value:   "flowstate:triggers:dead",
				Sources: cli.EnvVars("TRIGGER_DEAD_LETTER_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "kafka-trigger-topic",
				Usage:   "Kafka topic carrying trigger requests (disabled when empty)",
				Sources: cli.EnvVars("KAFKA_TRIGGER_TOPIC"),
			},
			&cli.StringFlag{
				Name:    "kafka-trigger-group",
				Usage:   "Consumer group of the Kafka trigger intake",
				Value:   kafka.DefaultConsumerGroup,
				Sources: cli.EnvVars("KAFKA_TRIGGER_GROUP"),
			},
			&cli.StringFlag{
				Name:    "directory-redis-url",
				Usage:   "Redis URL for the directory display-name cache (disabled when empty)",
				Sources: cli.EnvVars("DIRECTORY_REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "notifier-workers",
				Usage:   "Concurrent notification deliveries",
				Value:   defaults.Workers,
				Sources: cli.EnvVars("NOTIFIER_WORKERS"),
			},
			&cli.StringFlag{
				Name:    "mail-from",
				Usage:   "Sender address of notification emails",
				Value:   defaults.From,
				Sources: cli.EnvVars("MAIL_FROM"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.FloatFlag{
				Name:    "trace-sample-ratio",
				Usage:   "Share of traces exported (0 or 1 exports all)",
				Sources: cli.EnvVars("TRACE_SAMPLE_RATIO"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowstate-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Flowstate Worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			store, closeDirectory, err := cmd.NewDirectory(ctx, persistence.Directory(), command.String("directory-redis-url"), directory.DefaultCacheTTL, logger)
			if err != nil {
				return err
			}

			defer func() {
				err := closeDirectory()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close directory cache", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), "flowstate-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			options := []workflow.Option{
				workflow.WithLogger(logger),
				workflow.WithDirectory(store),
				workflow.WithPublisher(eventBus),
			}

			if command.Bool("tracing") {
				tracer, shutdown, err := otelhelper.Setup(ctx, otelhelper.Config{
					ServiceName: "flowstate-worker",
					SampleRatio: command.Float("trace-sample-ratio"),
				})
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					err := shutdown(context.WithoutCancel(ctx))
					if err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()

				options = append(options, workflow.WithTracer(tracer))
			}

			engine, err := workflow.New(persistence, options...)
			if err != nil {
				return err
			}

			consumer, err := queue.Connect(ctx, queue.Config{
				Addr:       command.String("redis-addr"),
				Password:   command.String("redis-password"),
				DB:         command.Int("redis-db"),
				Queue:      command.String("queue"),
				DeadLetter: command.String("dead-letter-queue"),
			}, engine, logger)
			if err != nil {
				return err
			}

			delivery, err := notifier.New(notifier.Config{
				Workers:        command.Int("notifier-workers"),
				From:           command.String("mail-from"),
				ReleaseTimeout: defaults.ReleaseTimeout,
			}, notifier.NewLogMailer(logger), logger)
			if err != nil {
				_ = consumer.Stop(ctx)

				return err
			}

			worker := NewWorker(eventBus, consumer, delivery, logger)

			if topic := command.String("kafka-trigger-topic"); topic != "" {
				intake, err := kafka.NewConsumer(kafka.Config{
					Brokers:       command.StringSlice("kafka-brokers"),
					Topic:         topic,
					ConsumerGroup: command.String("kafka-trigger-group"),
				}, engine, logger)
				if err != nil {
					_ = consumer.Stop(ctx)
					_ = delivery.Close()

					return err
				}

				worker.WithKafkaTrigger(intake)
			}

			return worker.Run(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("flowstate-worker").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
