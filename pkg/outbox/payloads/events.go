package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vertical-shop/pkg/enums"
)

// Event is any integration event that can be written to the outbox.
type Event interface {
	EventType() enums.OutboxEventType
}

// Keyed events name the key the bus uses to keep related events in order.
type Keyed interface {
	PartitionKey() string
}

// ProductCreated is emitted in the same transaction that inserts the product.
type ProductCreated struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductSlug string    `json:"product_slug"`
	ProductName string    `json:"product_name"`
}

func (ProductCreated) EventType() enums.OutboxEventType {
	return enums.EventProductCreated
}

func (e ProductCreated) PartitionKey() string {
	return e.ProductSlug
}

// ProductPriceChanged carries the old and new catalog price.
type ProductPriceChanged struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductSlug string          `json:"product_slug"`
	OldPrice    decimal.Decimal `json:"old_price"`
	NewPrice    decimal.Decimal `json:"new_price"`
}

func (ProductPriceChanged) EventType() enums.OutboxEventType {
	return enums.EventProductPriceChanged
}

func (e ProductPriceChanged) PartitionKey() string {
	return e.ProductSlug
}
