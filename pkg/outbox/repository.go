package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/vertical-shop/pkg/db/models"
)

// MaxErrorMessageLen caps the stored error_message in runes.
const MaxErrorMessageLen = 1024

var (
	ErrTransactionRequired = errors.New("outbox: transaction required")
	ErrMessageNotPending   = errors.New("outbox: message not pending")
)

type Repository struct {
	db         *gorm.DB
	skipLocked bool
}

type RepositoryOption func(*Repository)

// WithSkipLocked makes ClaimBatch lock the claimed rows with FOR UPDATE SKIP LOCKED
// so several relays can share a postgres table. Dialects without row locks ignore it.
func WithSkipLocked(enabled bool) RepositoryOption {
	return func(r *Repository) {
		r.skipLocked = enabled
	}
}

func NewRepository(db *gorm.DB, opts ...RepositoryOption) *Repository {
	r := &Repository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) Insert(tx *gorm.DB, msg models.OutboxMessage) error {
	if tx == nil {
		return ErrTransactionRequired
	}
	return tx.Create(&msg).Error
}

// ClaimBatch returns up to limit pending messages, oldest first.
func (r *Repository) ClaimBatch(tx *gorm.DB, limit int) ([]models.OutboxMessage, error) {
	if tx == nil {
		return nil, ErrTransactionRequired
	}
	if limit <= 0 {
		return nil, fmt.Errorf("outbox: claim limit must be positive, got %d", limit)
	}
	query := tx.Where("processed_at IS NULL").
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if r.skipLocked && tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var rows []models.OutboxMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkOutcome records the terminal result of the single delivery attempt.
// A nil errMsg means the message was published.
func (r *Repository) MarkOutcome(tx *gorm.DB, id uuid.UUID, processedAt time.Time, errMsg *string) error {
	if tx == nil {
		return ErrTransactionRequired
	}
	updates := map[string]any{
		"processed_at":  processedAt.UTC(),
		"error_message": nil,
	}
	if errMsg != nil {
		updates["error_message"] = truncateError(*errMsg)
	}
	res := tx.Model(&models.OutboxMessage{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotPending, id)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.OutboxMessage, error) {
	var msg models.OutboxMessage
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// CountPending reports how many messages still await the relay.
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("processed_at IS NULL").
		Count(&count).Error
	return count, err
}

func truncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorMessageLen {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorMessageLen])
}
