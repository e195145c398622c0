package pubsub

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process bus. Several bridges sharing one MemoryBroker
// behave like instances sharing one Redis. Delivery is synchronous.
type MemoryBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(room string, data []byte)
	down   bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[int]func(string, []byte))}
}

// SetDown simulates an outage: Publish and Subscribe fail until cleared.
func (m *MemoryBroker) SetDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func (m *MemoryBroker) Publish(ctx context.Context, room string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	if m.down {
		m.mu.RUnlock()
		return ErrBrokerDown
	}
	handlers := make([]func(string, []byte), 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(room, append([]byte(nil), data...))
	}
	return nil
}

func (m *MemoryBroker) Subscribe(_ context.Context, handler func(room string, data []byte)) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, ErrBrokerDown
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = handler
	return func() error {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		return nil
	}, nil
}

func (m *MemoryBroker) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

func (m *MemoryBroker) Close() error { return nil }
