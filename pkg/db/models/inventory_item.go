package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks on-hand quantity per product slug.
type InventoryItem struct {
	ProductSlug string    `gorm:"column:product_slug;type:varchar(200);primaryKey"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Quantity    int       `gorm:"column:quantity;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}
