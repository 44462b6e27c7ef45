package enums

import "fmt"

// OutboxEventType is the logical event name stored in outbox_messages.type.
type OutboxEventType string

const (
	EventProductCreated      OutboxEventType = "products.product_created"
	EventProductPriceChanged OutboxEventType = "products.product_price_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventProductCreated,
	EventProductPriceChanged,
}

// IsValid reports whether the value names a known event.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func (t OutboxEventType) String() string {
	return string(t)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
