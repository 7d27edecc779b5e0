package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/eventbus/dedupe"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/kafka"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

func main() {
	rt, err := bootstrap.Start(context.Background(), bootstrap.Options{Kind: "worker", Redis: true})
	if err != nil {
		bootstrap.Fatal(context.Background(), nil, "worker bootstrap failed", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error(context.Background(), "worker close", err)
		}
	}()
	cfg, logg := rt.Config, rt.Logger

	ledger, err := dedupe.New(rt.Redis, cfg.Eventing.OutboxIdempotencyTTL, instance.GetID())
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to build dedupe ledger", err)
	}
	consumer, err := notifications.NewConsumer(notifications.NewRepository(rt.DB.DB()), ledger, logg)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to build notification consumer", err)
	}

	params := ServiceParams{
		Config:               cfg,
		Logger:               logg,
		DB:                   rt.DB,
		Redis:                rt.Redis,
		NotificationConsumer: consumer,
	}
	if err := attachSubscribers(context.Background(), rt, &params); err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to attach event subscribers", err)
	}

	service, err := NewService(params)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to create worker", err)
	}

	ctx, stop := rt.SignalContext(context.Background())
	defer stop()
	ctx = logg.WithField(ctx, "broker", cfg.Eventing.Broker)
	rt.ServeMetrics(ctx)

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		return
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

// attachSubscribers opens the order and notification feeds on the configured broker.
func attachSubscribers(ctx context.Context, rt *bootstrap.Runtime, params *ServiceParams) error {
	cfg := rt.Config
	if cfg.Eventing.Broker == config.BrokerKafka {
		for _, topic := range []string{cfg.Kafka.OrdersTopic, cfg.Kafka.NotificationTopic} {
			sub, err := kafka.NewSubscriber(cfg.Kafka, topic, rt.Logger)
			if err != nil {
				return err
			}
			params.Subscribers = append(params.Subscribers, NamedSubscriber{Name: "kafka:" + topic, Subscriber: sub})
		}
		return nil
	}

	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger)
	if err != nil {
		return err
	}
	rt.OnClose("pubsub", client.Close)
	params.Broker = client
	params.Subscribers = []NamedSubscriber{
		{Name: "pubsub:" + cfg.PubSub.OrdersSubscription, Subscriber: client.OrdersSubscription()},
		{Name: "pubsub:" + cfg.PubSub.NotificationSubscription, Subscriber: client.NotificationSubscription()},
	}
	return nil
}
