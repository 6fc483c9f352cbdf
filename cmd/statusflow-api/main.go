package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/statusflowhq/statusflow/pkg/cache"
	"github.com/statusflowhq/statusflow/pkg/cmd"
	"github.com/statusflowhq/statusflow/pkg/eventbus"
	"github.com/statusflowhq/statusflow/pkg/log"
	"github.com/statusflowhq/statusflow/pkg/scheduler"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	app := &cli.Command{
		Name:                  "statusflow-api",
		Usage:                 "Manage automations and ingest status changes",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for cached status counts (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
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

			logger.InfoContext(ctx, "Initializing StatusFlow API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			// The API only inserts event rows. Claiming and dispatch belong
			// to the engine, so the bus here drops its processing kicks; a
			// live scheduler would complete events the API has no handlers
			// for.
			bus := eventbus.NewBus(persistence, scheduler.NewNoop(), logger, eventbus.DefaultConfig())

			var counters cache.CounterCache

			if redisURL := command.String("redis-url"); redisURL != "" {
				client, err := cmd.NewRedisClient(redisURL)
				if err != nil {
					return err
				}

				defer func() {
					if err := client.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close redis client", "error", err)
					}
				}()

				counters = cmd.NewCounterCache(client)
			}

			api := NewAPI(
				logger,
				persistence,
				bus,
				counters,
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
