package events

import (
	"context"
	"strconv"
)

// JSONProducer is satisfied by pkg/kafka.Producer
type JSONProducer interface {
	PublishJSON(ctx context.Context, key string, v interface{}) error
}

type kafkaRecord struct {
	Recipients []uint64 `json:"recipients"`
	Event      *Event   `json:"event"`
}

// KafkaPublisher mirrors events onto a Kafka topic keyed by conversation,
// so downstream consumers (notifications, analytics) see per-conversation order.
type KafkaPublisher struct {
	producer JSONProducer
}

// NewKafkaPublisher creates a KafkaPublisher
func NewKafkaPublisher(p JSONProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (k *KafkaPublisher) Publish(ctx context.Context, recipients []uint64, evt *Event) error {
	key := strconv.FormatUint(evt.ConversationID, 10)
	return k.producer.PublishJSON(ctx, key, kafkaRecord{Recipients: recipients, Event: evt})
}
