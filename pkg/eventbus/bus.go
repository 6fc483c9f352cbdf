// Package eventbus stores, dispatches and broadcasts domain events. Events
// are durable rows first; the bus claims them in batches, routes them to
// registered handlers, retries failures and announces completed events to
// external subscribers.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/statusflowhq/statusflow/pkg/events"
	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/otelhelper"
	"github.com/statusflowhq/statusflow/pkg/persistence"
	"github.com/statusflowhq/statusflow/pkg/scheduler"
)

const (
	DefaultBatchSize   = 25
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second
)

const processJobName = "eventbus:process"

// Handler processes one claimed domain event. A returned error sends the
// event down the retry path.
type Handler func(ctx context.Context, event *models.DomainEvent) error

type Config struct {
	// BatchSize caps how many pending events one processing pass claims.
	BatchSize int

	// MaxAttempts bounds dispatch attempts before an event is failed.
	MaxAttempts int

	// RetryDelay is the fixed delay before a retry pass. Not exponential:
	// the attempt budget is small enough that backoff buys nothing.
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:   DefaultBatchSize,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}

	return c
}

// Bus is the store-backed event bus. Processing is cooperative: each pass
// claims one batch and schedules its own successor, so there is no long
// lived loop to supervise.
type Bus struct {
	store     persistence.EventRepository
	scheduler scheduler.Scheduler
	announcer *Announcer
	logger    *slog.Logger
	tracer    trace.Tracer
	config    Config

	mu       sync.RWMutex
	handlers map[events.EventType]Handler
}

func NewBus(store persistence.EventRepository, sched scheduler.Scheduler, logger *slog.Logger, config Config) *Bus {
	return &Bus{
		store:     store,
		scheduler: sched,
		logger:    logger.With("module", "eventbus"),
		tracer:    otel.Tracer("statusflow/eventbus"),
		config:    config.withDefaults(),
		handlers:  make(map[events.EventType]Handler),
	}
}

// WithAnnouncer attaches the transport completed events are broadcast on.
func (b *Bus) WithAnnouncer(announcer *Announcer) *Bus {
	b.announcer = announcer

	return b
}

func (b *Bus) GenerateID() string {
	return watermill.NewULID()
}

// Handle registers the handler for an event type. Events whose type has no
// handler are treated as informational and complete immediately.
func (b *Bus) Handle(eventType events.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = handler
}

func (b *Bus) handlerFor(eventType events.EventType) (Handler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handler, ok := b.handlers[eventType]

	return handler, ok
}

// Publish inserts a pending event and schedules a processing pass. Returns
// the new event's ID. An empty correlationID correlates the event to itself.
// Dispatch failures are never reported here; they surface through stats and
// the replay endpoint.
func (b *Bus) Publish(ctx context.Context, orgID string, payload events.Payload, source, correlationID, causationID string) (string, error) {
	raw, err := events.Encode(payload)
	if err != nil {
		return "", err
	}

	id := b.GenerateID()
	if correlationID == "" {
		correlationID = id
	}

	event := &models.DomainEvent{
		ID:            id,
		OrgID:         orgID,
		Type:          string(payload.EventType()),
		Source:        source,
		Payload:       raw,
		Status:        models.EventStatusPending,
		CorrelationID: correlationID,
		CausationID:   causationID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := b.store.InsertEvent(ctx, event); err != nil {
		return "", fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	b.logger.DebugContext(ctx, "Published event",
		"event_id", event.ID,
		"event_type", event.Type,
		"org_id", orgID)

	b.Kick(0)

	return event.ID, nil
}

// EmitStatusChange is the convenience entry every status-mutation
// collaborator calls when an entity's status field changes.
func (b *Bus) EmitStatusChange(ctx context.Context, orgID string, change events.StatusChange, source, correlationID string) (string, error) {
	return b.Publish(ctx, orgID, change, source, correlationID, "")
}

// Kick schedules a processing pass after the given delay.
func (b *Bus) Kick(delay time.Duration) {
	b.scheduler.Schedule(processJobName, delay, b.ProcessEvents)
}

// ProcessEvents claims up to BatchSize oldest pending events, dispatches
// each, and schedules its own continuation: a zero-delay pass while backlog
// remains, a delayed pass when failures were released for retry.
func (b *Bus) ProcessEvents(ctx context.Context) {
	ctx, span := b.tracer.Start(ctx, "eventbus.process")
	defer span.End()

	claimed, err := b.store.ClaimPendingEvents(ctx, b.config.BatchSize)
	if err != nil {
		otelhelper.SetError(span, err)
		b.logger.ErrorContext(ctx, "Failed to claim pending events", "error", err)
		b.Kick(b.config.RetryDelay)

		return
	}

	span.SetAttributes(attribute.Int(otelhelper.BatchSizeKey, len(claimed)))

	if len(claimed) == 0 {
		return
	}

	released := 0

	for _, event := range claimed {
		if b.dispatch(ctx, event) {
			released++
		}
	}

	pending, err := b.store.CountPendingEvents(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to count pending events", "error", err)

		return
	}

	switch {
	case pending > int64(released):
		b.Kick(0)
	case released > 0:
		b.Kick(b.config.RetryDelay)
	}
}

// dispatch routes one claimed event. Reports whether the event went back to
// pending for a retry.
func (b *Bus) dispatch(ctx context.Context, event *models.DomainEvent) bool {
	logger := b.logger.With(
		"event_id", event.ID,
		"event_type", event.Type,
		"org_id", event.OrgID,
		"attempt", event.AttemptCount)

	handler, ok := b.handlerFor(events.EventType(event.Type))
	if !ok {
		// Informational event: nothing to run, complete it.
		b.complete(ctx, event, logger)

		return false
	}

	if err := handler(ctx, event); err != nil {
		if event.AttemptCount >= b.config.MaxAttempts {
			logger.ErrorContext(ctx, "Event exhausted retry attempts", "error", err)

			if failErr := b.store.MarkEventFailed(ctx, event.ID, err.Error(), time.Now().UTC()); failErr != nil {
				logger.ErrorContext(ctx, "Failed to mark event failed", "error", failErr)
			}

			return false
		}

		logger.WarnContext(ctx, "Event dispatch failed, retrying later", "error", err)

		if relErr := b.store.ReleaseEvent(ctx, event.ID, err.Error()); relErr != nil {
			logger.ErrorContext(ctx, "Failed to release event for retry", "error", relErr)

			return false
		}

		return true
	}

	b.complete(ctx, event, logger)

	return false
}

func (b *Bus) complete(ctx context.Context, event *models.DomainEvent, logger *slog.Logger) {
	if err := b.store.MarkEventCompleted(ctx, event.ID, time.Now().UTC()); err != nil {
		logger.ErrorContext(ctx, "Failed to mark event completed", "error", err)

		return
	}

	b.announce(ctx, event, logger)
}

func (b *Bus) announce(ctx context.Context, event *models.DomainEvent, logger *slog.Logger) {
	if b.announcer == nil {
		return
	}

	if err := b.announcer.Announce(ctx, events.NewAnnouncement(event)); err != nil {
		// Broadcast is best-effort; the durable row is the source of truth.
		logger.WarnContext(ctx, "Failed to announce completed event", "error", err)
	}
}

func (b *Bus) Close() error {
	if b.announcer == nil {
		return nil
	}

	return b.announcer.Close()
}
