package product

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vertical-shop/pkg/db"
	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vertical-shop/pkg/errors"
	"github.com/angelmondragon/vertical-shop/pkg/pagination"
)

const slugConstraint = "ux_products_slug"

// Repository persists products and their attributes.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// CreateProduct inserts the product row together with its attributes.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		if isSlugViolation(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product slug already exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	return nil
}

// FindByID loads the product with its attributes.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindBySlug loads the product with its attributes.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Product, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

// SlugExists reports whether a product already uses slug.
func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check product slug")
	}
	return count > 0, nil
}

// List returns one page of products ordered by slug.
func (r *Repository) List(ctx context.Context, page pagination.Params) ([]models.Product, error) {
	page = page.Normalize()
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Attributes", func(tx *gorm.DB) *gorm.DB { return tx.Order("name ASC") }).
		Order("slug ASC").
		Offset(page.Offset).
		Limit(page.Limit).
		Find(&products).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	return products, nil
}

// UpdatePrice sets the price of a product. A missing product is reported as NOT_FOUND.
func (r *Repository) UpdatePrice(ctx context.Context, product *models.Product) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"price":      product.Price,
			"updated_at": product.UpdatedAt,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update product price")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Attributes", func(tx *gorm.DB) *gorm.DB { return tx.Order("name ASC") }).
		Where(query, arg).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return &product, nil
}

func isSlugViolation(err error) bool {
	return db.IsUniqueViolation(err, slugConstraint) || db.IsUniqueViolation(err, "products.slug")
}
