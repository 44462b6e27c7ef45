package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog listing addressed by its unique slug.
type Product struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Slug       string             `gorm:"column:slug;type:varchar(200);not null;uniqueIndex:ux_products_slug"`
	Name       string             `gorm:"column:name;type:varchar(200);not null"`
	Price      decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Attributes []ProductAttribute `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time          `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;not null"`
}
