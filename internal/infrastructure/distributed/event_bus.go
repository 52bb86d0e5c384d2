package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/ports"
	"sendctl/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventAdaptationChanged EventType = "adaptation.changed"
)

// Event is the envelope published on the Redis channel.
type Event struct {
	Type       EventType                `json:"type"`
	InstanceID string                   `json:"instance_id"`
	Timestamp  time.Time                `json:"timestamp"`
	SenderID   domain.SenderID          `json:"sender_id,omitempty"`
	Change     *domain.AdaptationChange `json:"change,omitempty"`
}

// EventBus fans adaptation changes out to other instances over Redis
// pub/sub. Events published by this instance are not delivered back to it.
type EventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
	breaker    *circuitbreaker.CircuitBreaker

	mu     sync.Mutex
	pubsub *redis.PubSub
}

var _ ports.AdaptationPublisher = (*EventBus)(nil)

func NewEventBus(
	client *redis.Client,
	instanceID string,
	channel string,
	logger *zap.SugaredLogger,
) *EventBus {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         10 * time.Second,
		MaxProbes:        1,
	})
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("event bus publisher state changed", "from", from.String(), "to", to.String())
	})

	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
		breaker:    breaker,
	}
}

func (eb *EventBus) InstanceID() string {
	return eb.instanceID
}

// Publish sends change to every other instance listening on the channel.
// After repeated Redis failures publishing fails fast with
// circuitbreaker.ErrOpen until a probe succeeds.
func (eb *EventBus) Publish(ctx context.Context, change domain.AdaptationChange) error {
	data, err := eb.encode(change)
	if err != nil {
		return err
	}

	err = eb.breaker.Execute(func() error {
		return eb.client.Publish(ctx, eb.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", EventAdaptationChanged,
		"sender_id", change.SenderID,
	)
	return nil
}

// Subscribe blocks delivering remote changes to handler until ctx is done.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(domain.AdaptationChange)) error {
	eb.mu.Lock()
	if eb.pubsub != nil {
		eb.mu.Unlock()
		return fmt.Errorf("already subscribed")
	}
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	eb.pubsub = pubsub
	eb.mu.Unlock()

	defer func() {
		eb.mu.Lock()
		eb.pubsub = nil
		eb.mu.Unlock()
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			change, remote, err := eb.decode([]byte(msg.Payload))
			if err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}
			if !remote {
				continue
			}
			handler(change)
		}
	}
}

func (eb *EventBus) encode(change domain.AdaptationChange) ([]byte, error) {
	data, err := json.Marshal(&Event{
		Type:       EventAdaptationChanged,
		InstanceID: eb.instanceID,
		Timestamp:  time.Now(),
		SenderID:   change.SenderID,
		Change:     &change,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// decode reports remote=false for events this instance published or does
// not understand.
func (eb *EventBus) decode(payload []byte) (domain.AdaptationChange, bool, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.AdaptationChange{}, false, err
	}
	if event.InstanceID == eb.instanceID || event.Type != EventAdaptationChanged || event.Change == nil {
		return domain.AdaptationChange{}, false, nil
	}
	return *event.Change, true, nil
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
