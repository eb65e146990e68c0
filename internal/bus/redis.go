package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Bus over redis Pub/Sub. Delivery is at-most-once: events
// published while no subscriber is connected are lost.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(opts *redis.Options) *Redis {
	return &Redis{rdb: redis.NewClient(opts)}
}

// Close closes the redis connection. Implements io.Closer.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Ping verifies redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Publish(ctx context.Context, topic, payload string) error {
	if err := r.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns once redis has confirmed the subscription.
func (r *Redis) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	pubsub := r.rdb.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	events := make(chan string, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(events)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case events <- decodePayload(msg.Payload):
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{topic: topic, events: events, cancel: cancel}, nil
}
