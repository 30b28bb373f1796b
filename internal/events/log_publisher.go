package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher is used when no broker is configured. Events end up in the structured log.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (publisher *LogPublisher) Publish(_ context.Context, eventType string, payload []byte, partitionKey string) error {
	publisher.logger.Info().
		Str("event_type", eventType).
		Str("partition_key", partitionKey).
		RawJSON("payload", payload).
		Msg("domain event")
	return nil
}

func (publisher *LogPublisher) Close() error {
	return nil
}
