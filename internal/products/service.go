package product

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vertical-shop/pkg/errors"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/payloads"
	"github.com/angelmondragon/vertical-shop/pkg/validate"
)

const priceScale = 2

// Service exposes catalog operations. Every mutation writes its integration
// event to the outbox in the same transaction.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	GetBySlug(ctx context.Context, slug string) (*ProductDTO, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error)
	SetPrice(ctx context.Context, input SetPriceInput) (*ProductDTO, error)
}

// CreateProductInput holds the payload to create a product.
type CreateProductInput struct {
	Slug       string            `json:"slug" validate:"required,max=200"`
	Name       string            `json:"name" validate:"required,max=200"`
	Price      decimal.Decimal   `json:"price"`
	Attributes map[string]string `json:"attributes" validate:"omitempty,dive,keys,required,max=100,endkeys,max=500"`
}

// SetPriceInput changes the catalog price of the product identified by slug.
type SetPriceInput struct {
	Slug  string          `json:"slug" validate:"required,max=200"`
	Price decimal.Decimal `json:"price"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxWriter interface {
	Enqueue(ctx context.Context, tx *gorm.DB, event payloads.Event) error
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outboxWriter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService constructs a product service instance.
func NewService(repo *Repository, tx txRunner, outbox outboxWriter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox writer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, logg: logg, now: time.Now}, nil
}

// CreateProduct inserts the product, its attributes and a ProductCreated
// outbox message atomically.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	input.Slug = strings.TrimSpace(input.Slug)
	input.Name = strings.TrimSpace(input.Name)
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := validatePrice(input.Price); err != nil {
		return nil, err
	}

	exists, err := s.repo.SlugExists(ctx, input.Slug)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{
			"slug": fmt.Sprintf("a product with the slug %q already exists", input.Slug),
		})
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate product id")
	}
	now := s.now().UTC()
	product := &models.Product{
		ID:         id,
		Slug:       input.Slug,
		Name:       input.Name,
		Price:      input.Price.Round(priceScale),
		Attributes: buildAttributes(id, input.Attributes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateProduct(ctx, product); err != nil {
			return err
		}
		event := payloads.ProductCreated{
			ProductID:   product.ID,
			ProductSlug: product.Slug,
			ProductName: product.Name,
		}
		if err := s.outbox.Enqueue(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "enqueue product created")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id":   product.ID.String(),
		"product_slug": product.Slug,
	}), "product created")
	return NewProductDTO(product), nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*ProductDTO, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	product, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(product), nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(product), nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	page := input.params()
	products, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, err
	}
	items := make([]ProductDTO, 0, len(products))
	for i := range products {
		items = append(items, *NewProductDTO(&products[i]))
	}
	return &ProductListResult{Items: items, Offset: page.Offset, Limit: page.Limit}, nil
}

// SetPrice updates the price and records ProductPriceChanged. Setting the
// current price again is a no-op and emits nothing.
func (s *service) SetPrice(ctx context.Context, input SetPriceInput) (*ProductDTO, error) {
	input.Slug = strings.TrimSpace(input.Slug)
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := validatePrice(input.Price); err != nil {
		return nil, err
	}
	newPrice := input.Price.Round(priceScale)

	var updated *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindBySlug(ctx, input.Slug)
		if err != nil {
			return err
		}
		updated = product
		if product.Price.Equal(newPrice) {
			return nil
		}

		oldPrice := product.Price
		product.Price = newPrice
		product.UpdatedAt = s.now().UTC()
		if err := repo.UpdatePrice(ctx, product); err != nil {
			return err
		}
		event := payloads.ProductPriceChanged{
			ProductID:   product.ID,
			ProductSlug: product.Slug,
			OldPrice:    oldPrice,
			NewPrice:    newPrice,
		}
		if err := s.outbox.Enqueue(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "enqueue product price changed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewProductDTO(updated), nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{
			"price": "must be greater than or equal to 0",
		})
	}
	return nil
}

func buildAttributes(productID uuid.UUID, attrs map[string]string) []models.ProductAttribute {
	if len(attrs) == 0 {
		return nil
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.ProductAttribute, 0, len(names))
	for _, name := range names {
		out = append(out, models.ProductAttribute{
			ProductID: productID,
			Name:      strings.TrimSpace(name),
			Value:     strings.TrimSpace(attrs[name]),
		})
	}
	return out
}
