package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vertical-shop/pkg/enums"
)

// OutboxMessage is an integration event written alongside a business change.
// ProcessedAt stays nil until the relay records the single delivery attempt.
type OutboxMessage struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Type         enums.OutboxEventType `gorm:"column:type;type:varchar(200);not null"`
	Payload      json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt    time.Time             `gorm:"column:created_at;not null;index:ix_outbox_messages_created_at"`
	ProcessedAt  *time.Time            `gorm:"column:processed_at"`
	ErrorMessage *string               `gorm:"column:error_message"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// Pending reports whether the relay has not yet attempted the message.
func (m OutboxMessage) Pending() bool {
	return m.ProcessedAt == nil
}
