package broker

import (
	"context"
	"encoding/json"
	"sync"
)

// InMemory is a process-local Conn with no network dependency, used for
// offline scenario tests (spec.md §3: "a scenario's broker may be null for
// offline tests") and for driving the end-to-end scenarios in SPEC_FULL.md
// §8 deterministically.
type InMemory struct {
	mu       sync.RWMutex
	handlers map[string][]func(map[string]any)
}

// NewInMemory creates an empty in-process broker.
func NewInMemory() *InMemory {
	return &InMemory{handlers: make(map[string][]func(map[string]any))}
}

func (b *InMemory) Subscribe(_ context.Context, topic string, onMessage func(map[string]any)) (Subscription, error) {
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], onMessage)
	idx := len(b.handlers[topic]) - 1
	b.mu.Unlock()
	return &inmemSubscription{broker: b, topic: topic, idx: idx}, nil
}

// Publish round-trips payload through JSON, the same lossy path a real
// broker would take, so tests exercise the identical decode logic that
// Entity.UpdateState sees in production.
func (b *InMemory) Publish(_ context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	obj, ok := decodeJSON(body)
	if !ok {
		return nil
	}
	b.mu.RLock()
	handlers := append([]func(map[string]any){}, b.handlers[topic]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		if h != nil {
			h(obj)
		}
	}
	return nil
}

func (b *InMemory) Close() error { return nil }

type inmemSubscription struct {
	broker *InMemory
	topic  string
	idx    int
}

func (s *inmemSubscription) Unsubscribe() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	handlers := s.broker.handlers[s.topic]
	if s.idx < len(handlers) {
		handlers[s.idx] = nil
	}
	return nil
}
