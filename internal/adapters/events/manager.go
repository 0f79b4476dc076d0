// Package events fans run lifecycle events out to in-process
// subscribers. Delivery is best-effort: a subscriber whose buffer is
// full loses the event rather than stalling the engine.
package events

import (
	"log/slog"
	"sync"
)

type Manager struct {
	mu          sync.RWMutex
	subscribers map[int]chan interface{}
	nextID      int
	closed      bool
	logger      *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		subscribers: make(map[int]chan interface{}),
		logger:      logger.With("component", "events"),
	}
}

func (m *Manager) Publish(event interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}
	for id, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			m.logger.Debug("subscriber buffer full, event dropped", "subscriber", id)
		}
	}
}

// Subscribe returns a receive channel and an unsubscribe func. The
// channel closes on unsubscribe or manager close.
func (m *Manager) Subscribe(buffer int) (<-chan interface{}, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		ch := make(chan interface{})
		close(ch)
		return ch, func() {}
	}

	id := m.nextID
	m.nextID++
	ch := make(chan interface{}, buffer)
	m.subscribers[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subscribers[id]; ok {
				delete(m.subscribers, id)
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
}
