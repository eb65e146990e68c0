package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-process Bus. Publish never blocks: a subscriber whose
// buffer is full misses the event and the drop is counted.
type Memory struct {
	mu      sync.RWMutex
	subs    map[string]map[*memorySub]struct{}
	dropped atomic.Uint64
}

type memorySub struct {
	ch chan string
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*memorySub]struct{})}
}

func (m *Memory) Publish(ctx context.Context, topic, payload string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for sub := range m.subs[topic] {
		select {
		case sub.ch <- decodePayload(payload):
		default:
			m.dropped.Add(1)
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	sub := &memorySub{ch: make(chan string, 10)}

	m.mu.Lock()
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[*memorySub]struct{})
	}
	m.subs[topic][sub] = struct{}{}
	m.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[topic], sub)
			if len(m.subs[topic]) == 0 {
				delete(m.subs, topic)
			}
			close(sub.ch)
			m.mu.Unlock()
		})
	}

	go func() {
		<-subCtx.Done()
		stop()
	}()

	return &Subscription{topic: topic, events: sub.ch, cancel: cancel}, nil
}

// Subscribers returns the number of active subscribers on topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[topic])
}

// Dropped returns the number of events lost to full subscriber buffers.
func (m *Memory) Dropped() uint64 {
	return m.dropped.Load()
}
