package models

import "github.com/google/uuid"

type ProductAttribute struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;type:varchar(100);primaryKey"`
	Value     string    `gorm:"column:value;type:varchar(500);not null"`
}
