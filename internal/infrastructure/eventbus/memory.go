package eventbus

import (
	"context"
	"sync"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/events"
)

// MemoryBus delivers events synchronously to in-process subscribers. Every event goes through the
// wire codec, so subscribers see exactly what a Kafka consumer would.
type MemoryBus struct {
	log       logger.Logger
	mu        sync.RWMutex
	handlers  map[string][]EventHandler
	published []events.Event
	closed    bool
}

func NewMemoryBus(log logger.Logger) *MemoryBus {
	return &MemoryBus{log: log, handlers: make(map[string][]EventHandler)}
}

func (m *MemoryBus) Publish(ctx context.Context, topic string, event events.Event) error {
	raw, err := marshalEvent(event)
	if err != nil {
		return err
	}
	decoded, err := unmarshalEvent(raw)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrBusClosed
	}
	m.published = append(m.published, decoded)
	handlers := append([]EventHandler(nil), m.handlers[topic]...)
	m.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, decoded); err != nil {
			m.log.Error("Error handling event", logger.Err(err), logger.String("event_type", decoded.Type()))
		}
	}
	return nil
}

// SubscribeWithGroupID registers handler for topic. The group ID is ignored: every handler sees every event.
func (m *MemoryBus) SubscribeWithGroupID(_ context.Context, topic, _ string, handler EventHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = append(m.handlers[topic], handler)
	return nil
}

// Published returns every event accepted so far, in order.
func (m *MemoryBus) Published() []events.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]events.Event(nil), m.published...)
}

func (m *MemoryBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
