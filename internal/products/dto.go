package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vertical-shop/pkg/db/models"
)

// ProductDTO is the read model returned by the product service.
type ProductDTO struct {
	ID         uuid.UUID         `json:"id"`
	Slug       string            `json:"slug"`
	Name       string            `json:"name"`
	Price      decimal.Decimal   `json:"price"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(product *models.Product) *ProductDTO {
	attrs := make(map[string]string, len(product.Attributes))
	for _, attr := range product.Attributes {
		attrs[attr.Name] = attr.Value
	}
	return &ProductDTO{
		ID:         product.ID,
		Slug:       product.Slug,
		Name:       product.Name,
		Price:      product.Price,
		Attributes: attrs,
		CreatedAt:  product.CreatedAt,
		UpdatedAt:  product.UpdatedAt,
	}
}
