package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/statusflowhq/statusflow/pkg/automation"
	"github.com/statusflowhq/statusflow/pkg/cmd"
	"github.com/statusflowhq/statusflow/pkg/eventbus"
	"github.com/statusflowhq/statusflow/pkg/log"
	"github.com/statusflowhq/statusflow/pkg/otelhelper"
	"github.com/statusflowhq/statusflow/pkg/receivers/queue"
	"github.com/statusflowhq/statusflow/pkg/scheduler"
	"github.com/statusflowhq/statusflow/pkg/services"
)

const serviceName = "statusflow-engine"

func main() {
	app := &cli.Command{
		Name:                  "statusflow-engine",
		EnableShellCompletion: true,
		Usage:                 "Process status-change events and run matching automations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "announcer",
				Usage:   "Announcement transport (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("ANNOUNCER_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list for the kafka announcer",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for the intake queue and counter cache (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "intake-queue",
				Usage:   "Redis list external systems push status changes onto",
				Value:   queue.DefaultQueue,
				Sources: cli.EnvVars("INTAKE_QUEUE"),
			},
			&cli.IntFlag{
				Name:    "event-retention-days",
				Usage:   "Days completed events are kept before cleanup",
				Value:   30,
				Sources: cli.EnvVars("EVENT_RETENTION_DAYS"),
			},
			&cli.IntFlag{
				Name:    "execution-retention-days",
				Usage:   "Days finished executions are kept before cleanup",
				Value:   90,
				Sources: cli.EnvVars("EXECUTION_RETENTION_DAYS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Install the OTLP tracer provider",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule(serviceName).With("engine_id", engineID)

			logger.InfoContext(ctx, "Initializing StatusFlow Engine")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, serviceName); err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			announcer, err := cmd.NewAnnouncer(
				command.String("announcer"),
				command.String("kafka-brokers"),
				serviceName,
				logger,
			)
			if err != nil {
				return err
			}

			var redisClient redis.UniversalClient

			if redisURL := command.String("redis-url"); redisURL != "" {
				redisClient, err = cmd.NewRedisClient(redisURL)
				if err != nil {
					return err
				}

				defer func() {
					if err := redisClient.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close redis client", "error", err)
					}
				}()
			}

			sched := scheduler.NewBackground(logger)
			bus := eventbus.NewBus(persistence, sched, logger, eventbus.DefaultConfig()).WithAnnouncer(announcer)
			counters := cmd.NewCounterCache(redisClient)

			matcher := automation.NewMatcher(persistence, logger)
			executor := automation.NewExecutor(
				persistence,
				bus,
				matcher,
				sched,
				counters,
				logger,
				automation.DefaultGuardConfig(),
			)
			operations := services.NewOperations(persistence, bus)

			engine := NewEngine(
				engineID,
				persistence,
				bus,
				executor,
				sched,
				operations,
				logger,
			).WithRetention(
				time.Duration(command.Int("event-retention-days"))*24*time.Hour,
				time.Duration(command.Int("execution-retention-days"))*24*time.Hour,
			)

			if redisClient != nil {
				receiver, err := queue.NewReceiver(redisClient, command.String("intake-queue"), bus, logger)
				if err != nil {
					return err
				}

				engine = engine.WithReceiver(receiver)
			}

			err = engine.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start engine", "error", err)
			}

			return nil
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
