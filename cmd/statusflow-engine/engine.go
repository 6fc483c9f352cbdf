package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/statusflowhq/statusflow/pkg/automation"
	"github.com/statusflowhq/statusflow/pkg/eventbus"
	"github.com/statusflowhq/statusflow/pkg/events"
	"github.com/statusflowhq/statusflow/pkg/persistence"
	"github.com/statusflowhq/statusflow/pkg/receivers/queue"
	"github.com/statusflowhq/statusflow/pkg/scheduler"
	"github.com/statusflowhq/statusflow/pkg/services"
)

// Maintenance cadence. The processing sweep is the engine's liveness floor:
// rows inserted by processes that never kick this engine wait at most one
// sweep interval.
const (
	sweepSchedule     = "*/2 * * * * *"
	staleSchedule     = "0 * * * * *"
	retentionSchedule = "0 0 * * * *"

	staleClaimAge  = 5 * time.Minute
	retentionBatch = 1000

	defaultEventRetention     = 30 * 24 * time.Hour
	defaultExecutionRetention = 90 * 24 * time.Hour
)

type Engine struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	bus         *eventbus.Bus
	executor    *automation.Executor
	scheduler   *scheduler.Background
	operations  *services.Operations
	receiver    *queue.Receiver
	maintenance *cron.Cron

	eventRetention     time.Duration
	executionRetention time.Duration
}

func NewEngine(
	id string,
	persistence persistence.Persistence,
	bus *eventbus.Bus,
	executor *automation.Executor,
	sched *scheduler.Background,
	operations *services.Operations,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		id:                 id,
		logger:             logger.With("module", "statusflow-engine", "engine_id", id),
		persistence:        persistence,
		bus:                bus,
		executor:           executor,
		scheduler:          sched,
		operations:         operations,
		eventRetention:     defaultEventRetention,
		executionRetention: defaultExecutionRetention,
	}
}

// WithReceiver attaches the Redis intake receiver. Engines without one still
// process events published through the API.
func (e *Engine) WithReceiver(receiver *queue.Receiver) *Engine {
	e.receiver = receiver

	return e
}

// WithRetention overrides the retention windows. Non-positive values keep
// the defaults.
func (e *Engine) WithRetention(eventRetention, executionRetention time.Duration) *Engine {
	if eventRetention > 0 {
		e.eventRetention = eventRetention
	}

	if executionRetention > 0 {
		e.executionRetention = executionRetention
	}

	return e
}

func (e *Engine) Start(ctx context.Context) error {
	e.logger.InfoContext(ctx, "Starting engine", "engine_id", e.id)

	e.bus.Handle(events.EntityStatusChangedEvent, e.executor.EventHandler())

	if e.receiver != nil {
		if err := e.receiver.Start(ctx); err != nil {
			return fmt.Errorf("failed to start intake receiver: %w", err)
		}
	}

	if err := e.startMaintenance(ctx); err != nil {
		return err
	}

	// Recover from whatever the previous run left behind: claims held by a
	// dead engine and rows that never got a kick.
	e.releaseStaleClaims(ctx)
	e.bus.Kick(0)

	e.logger.InfoContext(ctx, "Engine started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	e.logger.InfoContext(ctx, "Shutting down engine...")

	e.shutdown(ctx)

	return nil
}

func (e *Engine) startMaintenance(ctx context.Context) error {
	e.maintenance = cron.New(cron.WithSeconds(), cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := e.maintenance.AddFunc(sweepSchedule, func() {
		e.bus.Kick(0)
	}); err != nil {
		return fmt.Errorf("failed to schedule processing sweep: %w", err)
	}

	if _, err := e.maintenance.AddFunc(staleSchedule, func() {
		e.releaseStaleClaims(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule stale claim release: %w", err)
	}

	if _, err := e.maintenance.AddFunc(retentionSchedule, func() {
		e.enforceRetention(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule retention cleanup: %w", err)
	}

	e.maintenance.Start()

	return nil
}

// releaseStaleClaims returns events claimed by a crashed or partitioned
// engine to the pending pool.
func (e *Engine) releaseStaleClaims(ctx context.Context) {
	released, err := e.persistence.ReleaseStaleEvents(ctx, time.Now().UTC().Add(-staleClaimAge))
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to release stale event claims", "error", err)

		return
	}

	if released > 0 {
		e.logger.WarnContext(ctx, "Released stale event claims", "count", released)
		e.bus.Kick(0)
	}
}

func (e *Engine) enforceRetention(ctx context.Context) {
	e.drainExpired(ctx, "events", e.eventRetention, e.operations.CleanupOldEvents)
	e.drainExpired(ctx, "executions", e.executionRetention, e.operations.CleanupOldExecutions)
}

// drainExpired deletes in batches until a batch comes back short, so one
// hourly tick catches up even after downtime.
func (e *Engine) drainExpired(
	ctx context.Context,
	target string,
	retention time.Duration,
	cleanup func(context.Context, time.Duration, int) (int64, error),
) {
	var total int64

	for {
		deleted, err := cleanup(ctx, retention, retentionBatch)
		if err != nil {
			e.logger.ErrorContext(ctx, "Retention cleanup failed", "target", target, "error", err)

			return
		}

		total += deleted

		if deleted < retentionBatch {
			break
		}
	}

	if total > 0 {
		e.logger.InfoContext(ctx, "Retention cleanup removed expired records", "target", target, "count", total)
	}
}

// shutdown stops intake first so nothing new is published, then the
// maintenance loop, then waits for in-flight processing passes.
func (e *Engine) shutdown(ctx context.Context) {
	if e.receiver != nil {
		if err := e.receiver.Stop(ctx); err != nil {
			e.logger.ErrorContext(ctx, "Failed to stop intake receiver", "error", err)
		}
	}

	if e.maintenance != nil {
		<-e.maintenance.Stop().Done()
	}

	e.scheduler.Close()

	if err := e.bus.Close(); err != nil {
		e.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}
}
