// Package bus provides the document status event bus: a redis Pub/Sub
// backed implementation and an in-process one.
package bus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Bus publishes and subscribes to string payloads by topic.
type Bus interface {
	Publish(ctx context.Context, topic, payload string) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
}

// Subscription is an active listener on one topic.
// Caller must call Close() when done; cancelling the subscribe context
// also stops it.
type Subscription struct {
	topic  string
	events <-chan string
	cancel func()
	once   sync.Once
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Events returns the channel of payloads. It is closed when the
// subscription stops.
func (s *Subscription) Events() <-chan string {
	return s.events
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// decodePayload accepts a bare status or a JSON string.
func decodePayload(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if json.Unmarshal([]byte(raw), &s) == nil {
			return s
		}
	}
	return raw
}
