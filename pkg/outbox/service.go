package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/payloads"
)

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Enqueue writes event to the outbox inside the caller's transaction. Nothing is
// published here; the relay picks the row up after the caller commits.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, event payloads.Event) error {
	if tx == nil {
		return ErrTransactionRequired
	}
	if event == nil {
		return errors.New("outbox: event is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	eventType := event.EventType()
	if !eventType.IsValid() {
		return fmt.Errorf("outbox: unknown event type %q", eventType)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("outbox: encode %s: %w", eventType, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("outbox: generate id: %w", err)
	}

	row := models.OutboxMessage{
		ID:        id,
		Type:      eventType,
		Payload:   json.RawMessage(payload),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("outbox: insert %s: %w", eventType, err)
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":   id.String(),
			"event_type": eventType,
		})
		s.logg.Info(logCtx, "outbox message queued")
	}
	return nil
}
