package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memorySubscription is one registered handler, grounded on the
// teacher's modules/eventbus/memory.go memorySubscription shape.
type memorySubscription struct {
	token   Token
	topic   string
	handler Handler
}

// Memory is an in-process Bus backed by a topic->subscribers map under a
// single mutex, for tests and single-process demos where a real NATS
// broker would be overkill.
type Memory struct {
	mu   sync.RWMutex
	subs map[string][]*memorySubscription
	byID map[Token]*memorySubscription
}

// NewMemory creates an empty in-memory bus.
func NewMemory() *Memory {
	return &Memory{
		subs: make(map[string][]*memorySubscription),
		byID: make(map[Token]*memorySubscription),
	}
}

func (m *Memory) Connect(ctx context.Context) error { return nil }

func (m *Memory) Publish(topic string, payload []byte) error {
	m.mu.RLock()
	subs := append([]*memorySubscription{}, m.subs[topic]...)
	m.mu.RUnlock()
	for _, s := range subs {
		s.handler(payload)
	}
	return nil
}

func (m *Memory) Subscribe(topic string, handler Handler) (Token, error) {
	token := Token(uuid.NewString())
	sub := &memorySubscription{token: token, topic: topic, handler: handler}
	m.mu.Lock()
	m.subs[topic] = append(m.subs[topic], sub)
	m.byID[token] = sub
	m.mu.Unlock()
	return token, nil
}

func (m *Memory) Unsubscribe(token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byID[token]
	if !ok {
		return nil
	}
	delete(m.byID, token)
	list := m.subs[sub.topic]
	for i, s := range list {
		if s.token == token {
			m.subs[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) SpawnLoop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *Memory) Close() error { return nil }
