package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes domain events to Kafka keyed by submission so a consumer sees one
// submission's events in order.
type KafkaPublisher struct {
	writer       *kafka.Writer
	defaultTopic string
	topicByEvent map[string]string
}

func NewKafkaPublisher(brokers []string, defaultTopic string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	cleaned := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cleaned...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		defaultTopic: strings.TrimSpace(defaultTopic),
		topicByEvent: topicByEvent,
	}, nil
}

func (publisher *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	return publisher.writer.WriteMessages(ctx, kafka.Message{
		Topic: publisher.topicFor(eventType),
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (publisher *KafkaPublisher) topicFor(eventType string) string {
	if mapped, ok := publisher.topicByEvent[eventType]; ok && mapped != "" {
		return mapped
	}
	if publisher.defaultTopic != "" {
		return publisher.defaultTopic
	}
	return eventType
}

func (publisher *KafkaPublisher) Close() error {
	return publisher.writer.Close()
}
