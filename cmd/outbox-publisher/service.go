package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/eventbus"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPoll           = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	maxJitter             = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Publisher     eventbus.Publisher
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
}

// Service drains outbox_events onto the configured broker. Rows are claimed
// with SKIP LOCKED inside one transaction per batch, so several publishers can
// run side by side.
type Service struct {
	broker      string
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	publisher   eventbus.Publisher
	registry    registryResolver
	dlq         dlqRepository
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	for _, dep := range []struct {
		missing bool
		name    string
	}{
		{params.Config == nil, "config"},
		{params.Logger == nil, "logger"},
		{params.DB == nil, "database client"},
		{params.Publisher == nil, "event publisher"},
		{params.Repository == nil, "outbox repository"},
		{params.Registry == nil, "event registry"},
		{params.DLQRepository == nil, "dlq repository"},
	} {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	oc := params.Config.Outbox
	s := &Service{
		broker:      params.Config.Eventing.Broker,
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		publisher:   params.Publisher,
		registry:    params.Registry,
		dlq:         params.DLQRepository,
		metrics:     params.Metrics,
		batchSize:   oc.BatchSize,
		maxAttempts: oc.MaxAttempts,
		poll:        time.Duration(oc.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.poll <= 0 {
		s.poll = defaultPoll
	}
	return s, nil
}

// Run polls until ctx ends. Full batches are followed immediately by the next
// one; an empty outbox waits one poll interval and a failing batch backs off
// exponentially up to maxIdleBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.publisher.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping: %w", s.broker, err)
	}

	wait := s.poll
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		busy, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case busy:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}

		if err := sleep(ctx, wait+rand.N(maxJitter)); err != nil {
			return err
		}
	}
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

type dispatchResult struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	err     error
	topic   string
}

// processBatch reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	start := time.Now()
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.dispatch(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	if claimed > 0 {
		s.metrics.ObserveBatch(time.Since(start))
	}
	return claimed > 0, err
}

// dispatch publishes one event and classifies the result. It never touches the database.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) dispatchResult {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return dispatchResult{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	topic := resolved.Descriptor.Topic
	if topic == "" {
		return dispatchResult{
			outcome: outcomeDeadLetter,
			reason:  enums.OutboxDLQReasonNonRetryable,
			err:     fmt.Errorf("no topic configured for %s", event.EventType),
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	err = s.publisher.Publish(publishCtx, topic, toMessage(event, resolved.Envelope.EventID))

	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		return dispatchResult{outcome: outcomePublished, topic: topic}
	case errors.Is(err, eventbus.ErrTopicNotConfigured), errors.As(err, &nonRetryable):
		return dispatchResult{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, topic: topic}
	case event.AttemptCount+1 >= s.maxAttempts:
		return dispatchResult{
			outcome: outcomeDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			err:     fmt.Errorf("max publish attempts reached: %w", err),
			topic:   topic,
		}
	default:
		return dispatchResult{outcome: outcomeRetry, err: err, topic: topic}
	}
}

// settle records the dispatch result on the outbox row inside the batch tx.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d dispatchResult) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
		"topic":         d.topic,
	})

	switch d.outcome {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.Dispatched(string(event.EventType), metrics.OutboxPublished)
		s.logg.Debug(ctx, "outbox event published")

	case outcomeRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		s.metrics.Dispatched(string(event.EventType), metrics.OutboxRetried)
		s.logg.Warn(s.logg.WithField(ctx, "error", d.err.Error()), "outbox publish failed, will retry")

	case outcomeDeadLetter:
		msg := d.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.metrics.Dispatched(string(event.EventType), metrics.OutboxDeadLettered)
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"error":        msg,
			"error_reason": d.reason,
		}), "outbox event dead-lettered")
	}
	return nil
}

// toMessage keys the message by aggregate so a broker with ordering keys
// delivers one order's events in sequence.
func toMessage(event models.OutboxEvent, envelopeID string) eventbus.Message {
	if envelopeID == "" {
		envelopeID = event.ID.String()
	}
	return eventbus.Message{
		Key:  event.AggregateID.String(),
		Data: event.Payload,
		Attributes: map[string]string{
			eventbus.AttrEventID:       envelopeID,
			eventbus.AttrEventType:     string(event.EventType),
			eventbus.AttrAggregateType: string(event.AggregateType),
			eventbus.AttrAggregateID:   event.AggregateID.String(),
			eventbus.AttrCreatedAt:     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
