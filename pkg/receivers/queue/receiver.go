// Package queue consumes status-change notices pushed by external systems
// onto a Redis intake list and turns them into durable domain events.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/xeipuuv/gojsonschema"

	"github.com/statusflowhq/statusflow/pkg/events"
	"github.com/statusflowhq/statusflow/pkg/models"
)

const (
	// DefaultQueue is the Redis list key the receiver pops from.
	DefaultQueue = "statusflow:intake"

	popTimeout     = 1 * time.Second
	connectTimeout = 5 * time.Second
)

// Publisher is the slice of the event bus the receiver needs.
type Publisher interface {
	EmitStatusChange(ctx context.Context, orgID string, change events.StatusChange, source, correlationID string) (string, error)
}

// StatusChangeNotice is the wire format external systems push onto the
// intake list. Snake case matches the producers, which are not Go.
type StatusChangeNotice struct {
	OrgID         string `json:"org_id"`
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	OldStatus     string `json:"old_status"`
	NewStatus     string `json:"new_status"`
	Source        string `json:"source,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

var noticeSchema = map[string]any{
	"type":     "object",
	"required": []any{"org_id", "entity_type", "entity_id", "new_status"},
	"properties": map[string]any{
		"org_id":         map[string]any{"type": "string", "minLength": 1},
		"entity_type":    map[string]any{"type": "string", "minLength": 1},
		"entity_id":      map[string]any{"type": "string", "minLength": 1},
		"old_status":     map[string]any{"type": "string"},
		"new_status":     map[string]any{"type": "string", "minLength": 1},
		"source":         map[string]any{"type": "string"},
		"correlation_id": map[string]any{"type": "string"},
	},
}

// Receiver pops intake notices from a Redis list and publishes them as
// status-change events. The client is shared infrastructure owned by the
// caller; the receiver never closes it.
type Receiver struct {
	client    redis.UniversalClient
	queue     string
	publisher Publisher
	logger    *slog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewReceiver(client redis.UniversalClient, queue string, publisher Publisher, logger *slog.Logger) (*Receiver, error) {
	if client == nil {
		return nil, errors.New("intake receiver requires a redis client")
	}

	if publisher == nil {
		return nil, errors.New("intake receiver requires a publisher")
	}

	if queue == "" {
		queue = DefaultQueue
	}

	return &Receiver{
		client:    client,
		queue:     queue,
		publisher: publisher,
		stopCh:    make(chan struct{}),
		logger: logger.With(
			"module", "intake_receiver",
			"queue", queue,
		),
	}, nil
}

// Start verifies the Redis connection and launches the consumer loop.
func (r *Receiver) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.logger.InfoContext(ctx, "Starting intake receiver")

	r.wg.Add(1)

	go r.consume(ctx)

	return nil
}

func (r *Receiver) consume(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			r.logger.InfoContext(ctx, "Intake consumer stopped")

			return
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Context cancelled, stopping intake consumer")

			return
		default:
			err := r.processMessage(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "Error processing intake message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (r *Receiver) processMessage(ctx context.Context) error {
	result, err := r.client.BLPop(ctx, popTimeout, r.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop intake message: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	notice, err := decodeNotice(message)
	if err != nil {
		// Poison messages are dropped so one bad producer cannot wedge the
		// whole intake stream.
		r.logger.WarnContext(ctx, "Dropping malformed intake message", "error", err)

		return nil
	}

	change := events.NewStatusChange(
		models.EntityType(notice.EntityType),
		notice.EntityID,
		models.Status(notice.OldStatus),
		models.Status(notice.NewStatus),
	)

	source := notice.Source
	if source == "" {
		source = events.SourceIntake
	}

	if _, err := r.publisher.EmitStatusChange(ctx, notice.OrgID, change, source, notice.CorrelationID); err != nil {
		// Store failures are not poison. Push the message back so it is
		// retried once the outage clears.
		if pushErr := r.client.LPush(ctx, r.queue, message).Err(); pushErr != nil {
			r.logger.ErrorContext(ctx, "Lost intake message after emit failure", "error", pushErr, "message", message)
		}

		return fmt.Errorf("failed to emit status change: %w", err)
	}

	r.logger.DebugContext(ctx, "Ingested status change",
		"org_id", notice.OrgID,
		"entity_type", notice.EntityType,
		"entity_id", notice.EntityID)

	return nil
}

// Stop drains the consumer loop. The shared Redis client stays open.
func (r *Receiver) Stop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Stopping intake receiver")

	close(r.stopCh)
	r.wg.Wait()

	return nil
}

// decodeNotice validates the raw message against the intake schema, then
// checks the status vocabulary for the named entity type.
func decodeNotice(message string) (*StatusChangeNotice, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(noticeSchema),
		gojsonschema.NewStringLoader(message),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate intake message: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, fmt.Errorf("JSON schema validation failed: %s", strings.Join(details, "; "))
	}

	var notice StatusChangeNotice
	if err := json.Unmarshal([]byte(message), &notice); err != nil {
		return nil, fmt.Errorf("failed to decode intake message: %w", err)
	}

	entityType := models.EntityType(notice.EntityType)
	if !models.ValidEntityType(entityType) {
		return nil, fmt.Errorf("unknown entity type %q", notice.EntityType)
	}

	if !models.ValidStatus(entityType, models.Status(notice.NewStatus)) {
		return nil, fmt.Errorf("status %q is not valid for %s", notice.NewStatus, entityType)
	}

	if notice.OldStatus != "" && !models.ValidStatus(entityType, models.Status(notice.OldStatus)) {
		return nil, fmt.Errorf("status %q is not valid for %s", notice.OldStatus, entityType)
	}

	return &notice, nil
}
