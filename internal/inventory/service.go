package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vertical-shop/pkg/errors"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/validate"
)

// Service exposes stock operations on inventory items.
type Service interface {
	Receive(ctx context.Context, input AdjustInput) (*ItemDTO, error)
	Restock(ctx context.Context, input AdjustInput) (*ItemDTO, error)
	QuantityInStock(ctx context.Context, slug string) (int, error)
}

// AdjustInput adds Quantity units to the item for ProductSlug.
type AdjustInput struct {
	ProductSlug string `json:"product_slug" validate:"required,max=200"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
}

// ItemDTO is the read model for one inventory item.
type ItemDTO struct {
	ProductSlug string    `json:"product_slug"`
	ProductID   uuid.UUID `json:"product_id"`
	Quantity    int       `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newItemDTO(item *models.InventoryItem) *ItemDTO {
	return &ItemDTO{
		ProductSlug: item.ProductSlug,
		ProductID:   item.ProductID,
		Quantity:    item.Quantity,
		UpdatedAt:   item.UpdatedAt,
	}
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo *Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg, now: time.Now}, nil
}

// Receive books goods received from a supplier.
func (s *service) Receive(ctx context.Context, input AdjustInput) (*ItemDTO, error) {
	return s.adjust(ctx, "receive", input)
}

// Restock returns units to stock, e.g. after a cancelled order.
func (s *service) Restock(ctx context.Context, input AdjustInput) (*ItemDTO, error) {
	return s.adjust(ctx, "restock", input)
}

func (s *service) QuantityInStock(ctx context.Context, slug string) (int, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "product slug is required")
	}
	item, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return 0, err
	}
	return item.Quantity, nil
}

func (s *service) adjust(ctx context.Context, reason string, input AdjustInput) (*ItemDTO, error) {
	input.ProductSlug = strings.TrimSpace(input.ProductSlug)
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	var item *models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.AddQuantity(ctx, input.ProductSlug, input.Quantity, s.now().UTC()); err != nil {
			return err
		}
		loaded, err := repo.FindBySlug(ctx, input.ProductSlug)
		if err != nil {
			return err
		}
		item = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_slug": item.ProductSlug,
		"reason":       reason,
		"delta":        input.Quantity,
		"quantity":     item.Quantity,
	}), "inventory adjusted")
	return newItemDTO(item), nil
}
