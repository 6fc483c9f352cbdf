package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/statusflowhq/statusflow/pkg/channels/gochannel"
	"github.com/statusflowhq/statusflow/pkg/channels/kafka"
	"github.com/statusflowhq/statusflow/pkg/eventbus"
)

// NewAnnouncer builds the broadcast transport completed events are announced
// on. The kafka provider is shared across every process in a deployment;
// gochannel stays in-process and suits development.
func NewAnnouncer(provider, brokers, serviceName string, logger *slog.Logger) (*eventbus.Announcer, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, brokers, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka announcement channel: %w", err)
		}

		return eventbus.NewAnnouncer(pub, sub), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process announcement channel: %w", err)
		}

		return eventbus.NewAnnouncer(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported announcer provider: %s", provider)
	}
}
