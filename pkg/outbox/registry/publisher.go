package registry

import (
	"fmt"

	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	"github.com/angelmondragon/vertical-shop/pkg/enums"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its topic and payload decoder.
type EventDescriptor struct {
	EventType enums.OutboxEventType
	Topic     string
	Decode    Decoder
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Payload    payloads.Event
}

// EventRegistry maps each supported event type to its descriptor. It is built
// once at startup and read-only afterwards.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks failures that another attempt cannot fix.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// New returns an empty registry; use Register to populate it.
func New() *EventRegistry {
	return &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
}

// NewEventRegistry builds the registry of every event this service emits.
func NewEventRegistry(productsTopic string) (*EventRegistry, error) {
	if productsTopic == "" {
		return nil, fmt.Errorf("products topic is required")
	}

	reg := New()
	if err := Register[payloads.ProductCreated](reg, productsTopic); err != nil {
		return nil, err
	}
	if err := Register[payloads.ProductPriceChanged](reg, productsTopic); err != nil {
		return nil, err
	}
	return reg, nil
}

// Resolve finds the descriptor for a stored row and decodes its typed payload.
func (r *EventRegistry) Resolve(msg models.OutboxMessage) (*ResolvedEvent, error) {
	desc, ok := r.entries[msg.Type]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %q", msg.Type))
	}
	payload, err := desc.Decode(msg.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", msg.Type, err))
	}
	return &ResolvedEvent{
		Descriptor: desc,
		Payload:    payload,
	}, nil
}
