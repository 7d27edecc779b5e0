package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultOutboxRetention       = 7 * 24 * time.Hour
	defaultNotificationRetention = 30 * 24 * time.Hour
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository interface {
		DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
	}
	Retention time.Duration
}

// NewOutboxRetentionJob purges published outbox rows. Failed and dead-lettered
// rows stay until an operator looks at them.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.DB == nil || params.Repository == nil {
		return nil, errors.New("outbox retention needs a db runner and repository")
	}
	sweep := func(ctx context.Context, cutoff time.Time) (deleted int64, err error) {
		err = params.DB.WithTx(ctx, func(tx *gorm.DB) error {
			deleted, err = params.Repository.DeletePublishedBefore(tx, cutoff)
			return err
		})
		return deleted, err
	}
	return newRetentionJob("outbox-retention", params.Logger, params.Retention, defaultOutboxRetention, sweep)
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository interface {
		DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
	Retention time.Duration
}

// NewNotificationCleanupJob removes notifications read longer than Retention
// ago. Unread ones are never touched.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("notification cleanup needs a repository")
	}
	return newRetentionJob("notification-cleanup", params.Logger, params.Retention, defaultNotificationRetention, params.Repository.DeleteReadBefore)
}

// retentionJob deletes everything older than now minus keep.
type retentionJob struct {
	name  string
	logg  *logger.Logger
	keep  time.Duration
	sweep func(ctx context.Context, cutoff time.Time) (int64, error)
	now   func() time.Time
}

func newRetentionJob(name string, logg *logger.Logger, keep, fallback time.Duration, sweep func(context.Context, time.Time) (int64, error)) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("%s: logger required", name)
	}
	if keep <= 0 {
		keep = fallback
	}
	return &retentionJob{name: name, logg: logg, keep: keep, sweep: sweep, now: time.Now}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	deleted, err := j.sweep(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"job":          j.name,
		"cutoff":       cutoff.Format(time.RFC3339),
		"retention":    j.keep.String(),
		"rows_deleted": deleted,
	}), "retention sweep complete")
	return nil
}
