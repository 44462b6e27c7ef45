package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vertical-shop/pkg/bus"
	"github.com/angelmondragon/vertical-shop/pkg/config"
	dbpkg "github.com/angelmondragon/vertical-shop/pkg/db"
	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	pferrors "github.com/angelmondragon/vertical-shop/pkg/errors"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/metrics"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/payloads"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 100
	defaultDelay          = 10 * time.Second
	defaultPublishTimeout = 15 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type busPublisher interface {
	Publish(context.Context, bus.Message) error
	Ping(context.Context) error
}

type outboxRepository interface {
	ClaimBatch(tx *gorm.DB, limit int) ([]models.OutboxMessage, error)
	MarkOutcome(tx *gorm.DB, id uuid.UUID, processedAt time.Time, errMsg *string) error
}

type registryResolver interface {
	Resolve(models.OutboxMessage) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Bus        busPublisher
	Repository outboxRepository
	Registry   registryResolver
	Metrics    *metrics.RelayMetrics
	Retry      retryPolicy
}

// Service is the outbox relay: it claims pending messages, publishes them and
// records each outcome, one transaction per batch.
type Service struct {
	logg           *logger.Logger
	db             dbClient
	bus            busPublisher
	repo           outboxRepository
	registry       registryResolver
	metrics        *metrics.RelayMetrics
	retry          retryPolicy
	batchSize      int
	delay          time.Duration
	publishTimeout time.Duration
	now            func() time.Time
	sleep          func(context.Context, time.Duration) error
}

type batchResult struct {
	claimed   int
	published int
	failed    int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Bus == nil {
		return nil, errors.New("bus publisher is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}

	cfg := params.Config.Outbox
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = defaultDelay
	}
	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	retry := params.Retry
	if retry == nil {
		retry = newRetryPolicy(cfg)
	}

	return &Service{
		logg:           params.Logger,
		db:             params.DB,
		bus:            params.Bus,
		repo:           params.Repository,
		registry:       params.Registry,
		metrics:        params.Metrics,
		retry:          retry,
		batchSize:      batch,
		delay:          delay,
		publishTimeout: publishTimeout,
		now:            time.Now,
		sleep:          sleepContext,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	return pingDependency(ctx, s.logg, "bus", s.bus.Ping)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run relays batches until ctx is canceled. A batch that has started always
// runs to commit or rollback; cancellation interrupts the wait between batches
// and any retry backoff, leaving each remaining message one publish attempt.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		if _, err := s.processBatch(withRunContext(context.WithoutCancel(ctx), ctx)); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "error_dump", pferrors.Dump(err)), "outbox relay batch failed", err)
		}

		if err := s.sleep(ctx, s.delay); err != nil {
			s.logg.Info(ctx, "outbox relay context canceled")
			return err
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (batchResult, error) {
	var result batchResult
	started := s.now()

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		result = batchResult{}
		messages, err := s.repo.ClaimBatch(tx, s.batchSize)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		result.claimed = len(messages)

		for _, msg := range messages {
			published, err := s.processMessage(ctx, tx, msg)
			if err != nil {
				return err
			}
			if published {
				result.published++
			} else {
				result.failed++
			}
		}
		return nil
	})
	s.metrics.ObserveBatch(s.now().Sub(started))
	if err != nil {
		s.metrics.IncBatchFailure()
		return batchResult{claimed: result.claimed}, err
	}

	for i := 0; i < result.published; i++ {
		s.metrics.IncMessage(metrics.OutcomePublished)
	}
	for i := 0; i < result.failed; i++ {
		s.metrics.IncMessage(metrics.OutcomeFailed)
	}
	if result.claimed > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"claimed":   result.claimed,
			"published": result.published,
			"failed":    result.failed,
		}), "outbox relay batch committed")
	}
	return result, nil
}

// processMessage makes the delivery attempt for msg and records the outcome.
// Only a failure to record the outcome is returned; it aborts the batch.
func (s *Service) processMessage(ctx context.Context, tx *gorm.DB, msg models.OutboxMessage) (bool, error) {
	fields := s.messageFields(msg)

	var deliveryErr error
	resolved, err := s.registry.Resolve(msg)
	if err != nil {
		deliveryErr = err
	} else {
		fields["topic"] = resolved.Descriptor.Topic
		// In-process subscribers write through the batch tx; a shared sqlite file
		// would otherwise block on the lock this tx holds.
		txCtx := dbpkg.ContextWithTx(ctx, tx)
		deliveryErr = s.retry.Do(txCtx, func(ctx context.Context) error {
			publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
			defer cancel()
			return s.bus.Publish(publishCtx, toBusMessage(msg, resolved))
		})
	}

	var errMsg *string
	if deliveryErr != nil {
		text := deliveryErr.Error()
		errMsg = &text
	}
	if err := s.repo.MarkOutcome(tx, msg.ID, s.now().UTC(), errMsg); err != nil {
		return false, fmt.Errorf("mark outcome %s: %w", msg.ID, err)
	}

	logCtx := s.logg.WithFields(ctx, fields)
	if deliveryErr != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", deliveryErr.Error()), "outbox message failed")
		return false, nil
	}
	s.logg.Info(logCtx, "outbox message published")
	return true, nil
}

func toBusMessage(msg models.OutboxMessage, resolved *registry.ResolvedEvent) bus.Message {
	out := bus.Message{
		ID:        msg.ID.String(),
		Type:      string(msg.Type),
		Topic:     resolved.Descriptor.Topic,
		Data:      msg.Payload,
		CreatedAt: msg.CreatedAt,
	}
	if keyed, ok := resolved.Payload.(payloads.Keyed); ok {
		out.Key = keyed.PartitionKey()
	}
	return out
}

func (s *Service) messageFields(msg models.OutboxMessage) map[string]any {
	return map[string]any{
		"event_id":   msg.ID.String(),
		"event_type": msg.Type,
		"created_at": msg.CreatedAt.Format(time.RFC3339Nano),
		"batch_size": s.batchSize,
	}
}
