package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/dvega/clienthub-backend/pkg/logger"
)

// Envelope is the JSON body published on the customer-events topic.
type Envelope struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Publisher emits customer domain events on a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Publisher
	logg  *logger.Logger
	now   func() time.Time
}

// NewPublisher wraps the topic handle. Returns an error when the handle is nil
// so callers can decide between hard failure and disabled eventing.
func NewPublisher(topic *pubsub.Publisher, logg *logger.Logger) (*Publisher, error) {
	if topic == nil {
		return nil, errors.New("customer events topic is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Publisher{topic: topic, logg: logg, now: time.Now}, nil
}

// Publish sends one event and waits for the server acknowledgement.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) error {
	if p == nil || p.topic == nil {
		return errors.New("publisher not initialized")
	}

	body, err := json.Marshal(Envelope{
		EventType:  eventType,
		OccurredAt: p.now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event %q: %w", eventType, err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       body,
		Attributes: map[string]string{"event_type": eventType},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event %q: %w", eventType, err)
	}

	p.logg.Info(p.logg.WithFields(ctx, map[string]any{"event_type": eventType}), "customer event published")
	return nil
}
