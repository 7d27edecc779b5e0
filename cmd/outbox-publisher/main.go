package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/eventbus"
	"github.com/angelmondragon/storefront-backend/pkg/kafka"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

func main() {
	rt, err := bootstrap.Start(context.Background(), bootstrap.Options{Kind: "outbox-publisher"})
	if err != nil {
		bootstrap.Fatal(context.Background(), nil, "outbox publisher bootstrap failed", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error(context.Background(), "outbox publisher close", err)
		}
	}()
	cfg, logg := rt.Config, rt.Logger

	publisher, topics, err := newPublisher(context.Background(), cfg, logg)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to bootstrap event publisher", err)
	}
	rt.OnClose("publisher", publisher.Close)

	eventRegistry, err := registry.NewEventRegistry(topics)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to build event registry", err)
	}
	outboxRepo := outbox.NewRepository(rt.DB.DB())
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            rt.DB,
		Publisher:     publisher,
		Repository:    outboxRepo,
		Registry:      eventRegistry,
		DLQRepository: outboxRepo,
		Metrics:       metrics.NewOutboxMetrics(rt.Registry),
	})
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to create outbox publisher", err)
	}

	ctx, stop := rt.SignalContext(context.Background())
	defer stop()
	ctx = logg.WithField(ctx, "broker", cfg.Eventing.Broker)
	rt.ServeMetrics(ctx)

	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		return
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

// newPublisher picks the broker named by STOREFRONT_EVENTING_BROKER and returns
// the topic names events are routed to on it.
func newPublisher(ctx context.Context, cfg *config.Config, logg *logger.Logger) (eventbus.Publisher, registry.Topics, error) {
	if cfg.Eventing.Broker == config.BrokerKafka {
		topics := registry.Topics{Orders: cfg.Kafka.OrdersTopic, Notifications: cfg.Kafka.NotificationTopic}
		if err := kafka.EnsureTopics(ctx, cfg.Kafka, topics.Orders, topics.Notifications); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "kafka topic bootstrap failed")
		}
		pub, err := kafka.NewPublisher(cfg.Kafka)
		return pub, topics, err
	}
	topics := registry.Topics{Orders: cfg.PubSub.OrdersTopic, Notifications: cfg.PubSub.NotificationTopic}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	return client, topics, err
}
