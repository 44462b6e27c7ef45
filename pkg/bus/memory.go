package bus

import (
	"context"
	"sync"

	"go.uber.org/multierr"
)

// Memory delivers messages synchronously to in-process handlers.
type Memory struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	published []Message
}

func NewMemory() *Memory {
	return &Memory{handlers: make(map[string][]Handler)}
}

// Subscribe registers handler for every message published to topic.
func (m *Memory) Subscribe(topic string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = append(m.handlers[topic], handler)
}

// Publish records msg and hands it to each subscriber; handler errors are combined.
func (m *Memory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg.Attributes = msg.attributes()

	m.mu.Lock()
	m.published = append(m.published, msg)
	handlers := append([]Handler(nil), m.handlers[msg.Topic]...)
	m.mu.Unlock()

	var err error
	for _, handler := range handlers {
		err = multierr.Append(err, handler(ctx, msg))
	}
	return err
}

// Published returns a copy of every message seen so far.
func (m *Memory) Published() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Message(nil), m.published...)
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Subscriber adapts topic to the Subscriber interface. Receive blocks until ctx is done.
func (m *Memory) Subscriber(topic string) Subscriber {
	return memorySubscriber{bus: m, topic: topic}
}

type memorySubscriber struct {
	bus   *Memory
	topic string
}

func (s memorySubscriber) Receive(ctx context.Context, handler Handler) error {
	s.bus.Subscribe(s.topic, handler)
	<-ctx.Done()
	return nil
}
