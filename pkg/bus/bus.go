// Package bus is the narrow message-bus surface the relay and consumers share.
// Drivers exist for an in-process bus, GCP Pub/Sub and Kafka.
package bus

import (
	"context"
	"time"
)

// Attribute keys set on every published message.
const (
	AttrEventID   = "event_id"
	AttrEventType = "event_type"
	AttrCreatedAt = "created_at"
)

// Message is one integration event on its way to, or coming from, the bus.
type Message struct {
	ID         string
	Type       string
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
	CreatedAt  time.Time
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Handler processes one delivered message. Returning an error asks the driver
// to redeliver it.
type Handler func(ctx context.Context, msg Message) error

type Subscriber interface {
	Receive(ctx context.Context, handler Handler) error
}

// Driver is a publisher that owns connections.
type Driver interface {
	Publisher
	Ping(ctx context.Context) error
	Close() error
}

func (m Message) attributes() map[string]string {
	attrs := make(map[string]string, len(m.Attributes)+3)
	for k, v := range m.Attributes {
		attrs[k] = v
	}
	if m.ID != "" {
		attrs[AttrEventID] = m.ID
	}
	if m.Type != "" {
		attrs[AttrEventType] = m.Type
	}
	if !m.CreatedAt.IsZero() {
		attrs[AttrCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return attrs
}

func messageFromAttributes(topic string, data []byte, attrs map[string]string) Message {
	msg := Message{
		ID:         attrs[AttrEventID],
		Type:       attrs[AttrEventType],
		Topic:      topic,
		Data:       data,
		Attributes: attrs,
	}
	if raw := attrs[AttrCreatedAt]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			msg.CreatedAt = ts
		}
	}
	return msg
}
