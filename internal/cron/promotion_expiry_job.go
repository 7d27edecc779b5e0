package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const defaultPromotionExpiryBatch = 200

// PromotionExpiryJobParams configure the promotion expiry job.
type PromotionExpiryJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository *promotions.Repository
	Outbox     outboxEmitter
	BatchSize  int
}

type outboxEmitter interface {
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// NewPromotionExpiryJob builds the job that switches off promotions whose end
// date has passed and records a promotion_expired event for each.
func NewPromotionExpiryJob(params PromotionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("promotions repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPromotionExpiryBatch
	}
	return &promotionExpiryJob{
		logg:   params.Logger,
		db:     params.DB,
		repo:   params.Repository,
		outbox: params.Outbox,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type promotionExpiryJob struct {
	logg   *logger.Logger
	db     txRunner
	repo   *promotions.Repository
	outbox outboxEmitter
	batch  int
	now    func() time.Time
}

func (j *promotionExpiryJob) Name() string { return "promotion-expiry" }

func (j *promotionExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.repo.FindExpiredActive(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("query expired promotions: %w", err)
	}

	var errs error
	count := 0
	for _, promo := range expired {
		if err := j.expire(ctx, promo, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire promotion %s: %w", promo.Code, err))
			continue
		}
		count++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"found":       len(expired),
		"deactivated": count,
	})
	j.logg.Info(logCtx, "promotion expiry loop complete")
	return errs
}

func (j *promotionExpiryJob) expire(ctx context.Context, promo models.Promotion, now time.Time) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := j.repo.WithTx(tx).Deactivate(ctx, promo.ID); err != nil {
			return err
		}
		return j.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPromotionExpired,
			AggregateType: enums.AggregatePromotion,
			AggregateID:   promo.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.PromotionExpiredEvent{
				PromotionID: promo.ID,
				Code:        promo.Code,
				EndDate:     promo.EndDate,
			},
		})
	})
}
