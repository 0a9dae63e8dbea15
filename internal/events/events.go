// Package events publishes card lifecycle events. Publishing is best-effort:
// the card workflow never waits on or fails because of the broker.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	TypeCardRegistered    = "card.registered"
	TypeCardStatusChanged = "card.status_changed"
)

// Event is the JSON value written to the lifecycle topic, keyed by card id.
type Event struct {
	Type           string    `json:"type"`
	CardID         string    `json:"cardId"`
	UserID         string    `json:"userId"`
	Reference      string    `json:"ruv"`
	Issuer         string    `json:"issuer,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Source         string    `json:"source,omitempty"` // refresh | poller | override
	OccurredAt     time.Time `json:"occurredAt"`
}

// Noop drops events; used when KAFKA_BROKERS is empty.
type Noop struct{}

func (Noop) Publish(context.Context, Event) {}

// KafkaPublisher produces events asynchronously with franz-go.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func NewKafkaPublisher(client *kgo.Client, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode lifecycle event", "type", event.Type, "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.CardID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	// Detached from the request so a finished handler does not abort the produce.
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("failed to publish lifecycle event",
				"type", event.Type, "card_id", event.CardID, "error", err)
		}
	})
}

// Close flushes buffered records until ctx expires, then closes the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
