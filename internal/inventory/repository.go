package inventory

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/vertical-shop/pkg/db"
	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vertical-shop/pkg/errors"
)

// Repository persists inventory items keyed by product slug.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Within runs fn against the transaction carried on ctx, inside a savepoint so a
// failure leaves the outer transaction usable. Without one fn runs on the pool.
func (r *Repository) Within(ctx context.Context, fn func(repo *Repository) error) error {
	tx := dbpkg.TxFromContext(ctx)
	if tx == nil {
		return fn(r)
	}
	return tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return fn(r.WithTx(sp))
	})
}

// EnsureItem inserts item unless a row for its slug already exists. An
// existing row keeps its quantity. created reports whether a row was inserted.
func (r *Repository) EnsureItem(ctx context.Context, item *models.InventoryItem) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_slug"}},
			DoNothing: true,
		}).
		Create(item)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "ensure inventory item")
	}
	return res.RowsAffected == 1, nil
}

// AddQuantity increments the on-hand quantity for slug.
func (r *Repository) AddQuantity(ctx context.Context, slug string, delta int, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_slug = ?", slug).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", delta),
			"updated_at": at,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update inventory quantity")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	return nil
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).Where("product_slug = ?", slug).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory item")
	}
	return &item, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InventoryItem{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
