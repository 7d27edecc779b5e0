package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/eventbus"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type notificationConsumer interface {
	Run(ctx context.Context, sub eventbus.Subscriber) error
}

// NamedSubscriber pairs a subscriber with the source it reads, for logging.
type NamedSubscriber struct {
	Name       string
	Subscriber eventbus.Subscriber
}

type ServiceParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	DB                   pinger
	Redis                pinger
	Broker               pinger
	NotificationConsumer notificationConsumer
	Subscribers          []NamedSubscriber
}

type dependency struct {
	name string
	dep  pinger
}

// Service runs the notification consumer against every configured source.
type Service struct {
	logg        *logger.Logger
	deps        []dependency
	consumer    notificationConsumer
	subscribers []NamedSubscriber
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Redis == nil:
		return nil, errors.New("redis client is required")
	case params.NotificationConsumer == nil:
		return nil, errors.New("notification consumer is required")
	}

	s := &Service{
		logg:     params.Logger,
		deps:     []dependency{{"database", params.DB}, {"redis", params.Redis}},
		consumer: params.NotificationConsumer,
	}
	if params.Broker != nil {
		s.deps = append(s.deps, dependency{params.Config.Eventing.Broker, params.Broker})
	}
	for _, sub := range params.Subscribers {
		if sub.Subscriber != nil {
			s.subscribers = append(s.subscribers, sub)
		}
	}
	if len(s.subscribers) == 0 {
		return nil, errors.New("at least one subscriber is required")
	}
	return s, nil
}

// ready pings dependencies in order and stops at the first failure.
func (s *Service) ready(ctx context.Context) error {
	for _, d := range s.deps {
		if err := d.dep.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", d.name), "dependency unreachable", err)
			return fmt.Errorf("%s ping failed: %w", d.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until ctx ends. When one subscriber fails the others are
// cancelled and its error is returned.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, sub := range s.subscribers {
		group.Go(func() error {
			subCtx := s.logg.WithField(groupCtx, "source", sub.Name)
			s.logg.Info(subCtx, "notification consumer started")
			err := s.consumer.Run(subCtx, sub.Subscriber)
			if err == nil || errors.Is(err, context.Canceled) {
				return err
			}
			s.logg.Error(subCtx, "consumer stopped unexpectedly", err)
			return fmt.Errorf("%s: %w", sub.Name, err)
		})
	}
	err := group.Wait()
	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	return err
}
