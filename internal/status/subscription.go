// Package status listens for document build status events on the bus.
package status

import (
	"context"
	"log/slog"

	"go-live-preview/internal/bus"
	"go-live-preview/internal/document"
	"go-live-preview/internal/loop"
)

// Handler receives status values on the loop goroutine.
type Handler func(status document.Status)

// Subscription keeps at most one active listener. Subscribe, Unsubscribe
// and Active must be called on the loop goroutine; the handler runs there
// too.
type Subscription struct {
	loop   *loop.Loop
	bus    bus.Bus
	entity string
	log    *slog.Logger

	current *listener
}

type listener struct {
	topic  string
	cancel context.CancelFunc
}

func New(l *loop.Loop, b bus.Bus, entity string, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscription{loop: l, bus: b, entity: entity, log: logger}
}

// Active reports whether a listener is registered.
func (s *Subscription) Active() bool {
	return s.current != nil
}

// Topic returns the active topic, "" when not subscribed.
func (s *Subscription) Topic() string {
	if s.current == nil {
		return ""
	}
	return s.current.topic
}

// Subscribe starts listening for status changes of documentID. It is a
// no-op for unsaved documents and while already subscribed. Reports
// whether a new listener was registered.
func (s *Subscription) Subscribe(documentID string, isNew bool, onStatus Handler) bool {
	if isNew || s.current != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	ln := &listener{topic: document.Topic(s.entity, documentID), cancel: cancel}
	s.current = ln

	go s.pump(ctx, ln, onStatus)
	s.log.Debug("status subscribed", "topic", ln.topic)
	return true
}

// Unsubscribe stops the active listener. Safe to call when not subscribed.
func (s *Subscription) Unsubscribe() {
	if s.current == nil {
		return
	}
	s.current.cancel()
	s.log.Debug("status unsubscribed", "topic", s.current.topic)
	s.current = nil
}

func (s *Subscription) pump(ctx context.Context, ln *listener, onStatus Handler) {
	sub, err := s.bus.Subscribe(ctx, ln.topic)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.loop.Post(func() {
			s.log.Error("status subscription failed", "topic", ln.topic, "error", err)
			if s.current == ln {
				s.current = nil
			}
		})
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub.Events():
			if !ok {
				return
			}
			status := document.Status(raw)
			s.loop.Post(func() {
				if s.current != ln {
					return
				}
				onStatus(status)
			})
		}
	}
}
