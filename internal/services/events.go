package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// publishEvent is best effort. A broker outage is logged and never fails the caller.
func publishEvent(ctx context.Context, publisher EventPublisher, eventType string, key string, data map[string]any) {
	if publisher == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"type":        eventType,
		"occurred_at": time.Now().UTC(),
		"data":        data,
	})
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("encode payment event")
		return
	}
	if err := publisher.Publish(ctx, eventType, payload, key); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Str("key", key).Msg("publish payment event")
	}
}
