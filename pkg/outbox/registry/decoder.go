package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/vertical-shop/pkg/enums"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/payloads"
)

// Decoder turns a stored payload back into its typed event.
type Decoder func(payload json.RawMessage) (payloads.Event, error)

// Register binds the event type reported by T to topic. T must be a value type
// whose EventType method works on the zero value.
func Register[T payloads.Event](r *EventRegistry, topic string) error {
	var zero T
	eventType := zero.EventType()
	if !eventType.IsValid() {
		return fmt.Errorf("register %T: unknown event type %q", zero, eventType)
	}
	if topic == "" {
		return fmt.Errorf("register %s: topic is required", eventType)
	}
	if _, exists := r.entries[eventType]; exists {
		return fmt.Errorf("register %s: already registered", eventType)
	}
	r.entries[eventType] = EventDescriptor{
		EventType: eventType,
		Topic:     topic,
		Decode:    decodeAs[T],
	}
	return nil
}

func decodeAs[T payloads.Event](payload json.RawMessage) (payloads.Event, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("payload missing")
	}
	var event T
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, err
	}
	return event, nil
}

// Decode looks up the decoder for a raw type name, as received off the bus.
func (r *EventRegistry) Decode(eventType string, payload json.RawMessage) (payloads.Event, error) {
	typ, err := enums.ParseOutboxEventType(eventType)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	desc, ok := r.entries[typ]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("decoder not registered for %q", eventType))
	}
	event, err := desc.Decode(payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", eventType, err))
	}
	return event, nil
}
