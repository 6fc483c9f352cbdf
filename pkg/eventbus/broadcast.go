package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/statusflowhq/statusflow/pkg/events"
)

// AnnouncementHandler consumes one broadcast announcement.
type AnnouncementHandler func(ctx context.Context, announcement events.Announcement) error

// Announcer broadcasts completed domain events over a watermill channel so
// external consumers (notification fan-out, search indexing, analytics) can
// follow the org's activity without polling the store.
type Announcer struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]AnnouncementHandler
}

func NewAnnouncer(pub message.Publisher, sub message.Subscriber) *Announcer {
	return &Announcer{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]AnnouncementHandler),
	}
}

func (a *Announcer) Announce(ctx context.Context, announcement events.Announcement) error {
	payload, err := json.Marshal(announcement)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+announcement.ID, payload)
	msg.Metadata.Set(events.EventMetadataKey, announcement.OrgID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(announcement.Type))

	return a.publisher.Publish(events.Topic, msg)
}

// Handle registers a handler for announcements of the given event type.
func (a *Announcer) Handle(eventType events.EventType, handler AnnouncementHandler) {
	a.subscriptions[eventType] = handler
}

// Subscribe consumes the announcement topic and dispatches to registered
// handlers. Announcements with no handler are acknowledged and dropped.
func (a *Announcer) Subscribe(ctx context.Context) error {
	messages, err := a.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := a.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			var announcement events.Announcement
			if err := json.Unmarshal(msg.Payload, &announcement); err != nil {
				msg.Nack()

				continue
			}

			if err := handler(ctx, announcement); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (a *Announcer) Close() error {
	err := a.publisher.Close()
	if err != nil {
		return err
	}

	return a.subscriber.Close()
}
