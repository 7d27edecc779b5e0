package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func main() {
	rt, err := bootstrap.Start(context.Background(), bootstrap.Options{Kind: "cron-worker", Redis: true})
	if err != nil {
		bootstrap.Fatal(context.Background(), nil, "cron worker bootstrap failed", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error(context.Background(), "cron worker close", err)
		}
	}()
	cfg, logg := rt.Config, rt.Logger

	lock, err := cron.NewRedisLock(rt.Redis, rt.Redis.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to create cron lock", err)
	}
	registry, err := buildRegistry(rt)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to register cron jobs", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(rt.Registry),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to create cron service", err)
	}

	ctx, stop := rt.SignalContext(context.Background())
	defer stop()

	if cfg.Cron.RunOnce {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
		}
		return
	}

	rt.ServeMetrics(ctx)
	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}

func buildRegistry(rt *bootstrap.Runtime) (*cron.Registry, error) {
	conn := rt.DB.DB()
	outboxRepo := outbox.NewRepository(conn)

	promotionExpiry, err := cron.NewPromotionExpiryJob(cron.PromotionExpiryJobParams{
		Logger:     rt.Logger,
		DB:         rt.DB,
		Repository: promotions.NewRepository(conn),
		Outbox:     outbox.NewService(outboxRepo, rt.Logger),
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     rt.Logger,
		DB:         rt.DB,
		Repository: outboxRepo,
		Retention:  rt.Config.Outbox.Retention,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     rt.Logger,
		Repository: notifications.NewRepository(conn),
		Retention:  rt.Config.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(promotionExpiry, outboxRetention, notificationCleanup)
}
