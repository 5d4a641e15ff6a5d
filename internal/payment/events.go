package payment

import (
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// SettlementEvent is published when a collection reaches a terminal status.
type SettlementEvent struct {
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Amount      string `json:"amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Reason      string `json:"reason,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

// EventPublisher writes settlement events to Kafka. A nil publisher or a nil
// producer is a no-op, so event delivery stays optional.
type EventPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewEventPublisher wraps a sarama producer for the given topic.
func NewEventPublisher(producer sarama.SyncProducer, topic string) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic}
}

// Publish sends the event, logging delivery failures instead of surfacing them:
// settlement events are telemetry, not part of the payment contract.
func (p *EventPublisher) Publish(ev SettlementEvent) {
	if p == nil || p.producer == nil {
		return
	}

	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to encode settlement event for %s: %v", ev.ReferenceID, err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.ReferenceID),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		log.Printf("Failed to publish settlement event for %s: %v", ev.ReferenceID, err)
	}
}
