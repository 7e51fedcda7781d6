package main

import (
	"context"
	"fmt"

	"github.com/dukex/flowstate/pkg/cmd"
	"github.com/dukex/flowstate/pkg/directory"
	"github.com/dukex/flowstate/pkg/log"
	"github.com/dukex/flowstate/pkg/otelhelper"
	"github.com/dukex/flowstate/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the API server",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			databaseFlag(),
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka brokers used by the kafka event bus",
				Value:   []string{"localhost:9092"},
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the directory display-name cache (disabled when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "directory-cache-ttl",
				Usage:   "How long cached display names are kept",
				Value:   directory.DefaultCacheTTL,
				Sources: cli.EnvVars("DIRECTORY_CACHE_TTL"),
			},
			&cli.IntFlag{
				Name:    "max-steps",
				Usage:   "Upper bound of node activations per request",
				Value:   workflow.DefaultMaxSteps,
				Sources: cli.EnvVars("MAX_STEPS"),
			},
			&cli.StringFlag{
				Name:    "trigger-rule",
				Usage:   "How external trigger nodes are recognized (start-edge, no-incoming)",
				Value:   string(workflow.TriggerRuleStartEdge),
				Sources: cli.EnvVars("TRIGGER_RULE"),
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
		}, logFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Flowstate API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			store, closeDirectory, err := cmd.NewDirectory(ctx, persistence.Directory(), command.String("redis-url"), command.Duration("directory-cache-ttl"), logger)
			if err != nil {
				return err
			}

			defer func() {
				err := closeDirectory()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close directory cache", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), "flowstate-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			rule := workflow.TriggerRule(command.String("trigger-rule"))
			if !rule.Valid() {
				return fmt.Errorf("unsupported trigger rule %q", rule)
			}

			options := []workflow.Option{
				workflow.WithLogger(logger),
				workflow.WithDirectory(store),
				workflow.WithPublisher(eventBus),
				workflow.WithTriggerRule(rule),
				workflow.WithMaxSteps(command.Int("max-steps")),
			}

			if command.Bool("tracing") {
				tracer, shutdown, err := otelhelper.Setup(ctx, otelhelper.Config{
					ServiceName: "flowstate-api",
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

			api := NewAPI(logger, persistence, engine)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}
}
