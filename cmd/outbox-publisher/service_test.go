package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/eventbus"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

func TestProcessBatchOutcomes(t *testing.T) {
	cases := []struct {
		name         string
		attempts     int
		maxAttempts  int
		resolveErr   error
		topic        string
		publishErr   error
		wantState    string
		wantDLQ      enums.OutboxDLQErrorReason
		wantSentMsgs int
	}{
		{name: "published", topic: "orders", wantState: "published", wantSentMsgs: 1},
		{name: "transient failure retries", topic: "orders", publishErr: errors.New("unavailable"), wantState: "failed"},
		{name: "unknown topic dead-letters", topic: "orders", publishErr: eventbus.ErrTopicNotConfigured, wantState: "terminal", wantDLQ: enums.OutboxDLQReasonNonRetryable},
		{name: "empty topic dead-letters", topic: "", wantState: "terminal", wantDLQ: enums.OutboxDLQReasonNonRetryable},
		{name: "undecodable payload dead-letters", resolveErr: registry.NewNonRetryableError(errors.New("bad json")), wantState: "terminal", wantDLQ: enums.OutboxDLQReasonNonRetryable},
		{name: "last attempt dead-letters", attempts: 1, maxAttempts: 2, topic: "orders", publishErr: errors.New("unavailable"), wantState: "terminal", wantDLQ: enums.OutboxDLQReasonMaxAttempts},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := newEvent(t, enums.EventOrderCreated)
			event.AttemptCount = tc.attempts
			repo := &fakeRepo{events: []models.OutboxEvent{event}}
			pub := &fakePublisher{errs: []error{tc.publishErr}}
			reg := &fakeRegistry{err: tc.resolveErr}
			if tc.resolveErr == nil {
				reg.resolved = &registry.ResolvedEvent{
					Descriptor: registry.EventDescriptor{Topic: tc.topic},
					Payload:    &payloads.OrderCreatedEvent{},
				}
			}
			dlq := &fakeDLQRepo{}
			svc := newTestService(t, repo, pub, reg, dlq, config.OutboxConfig{MaxAttempts: tc.maxAttempts}, nil)

			busy, err := svc.processBatch(context.Background())
			require.NoError(t, err)
			assert.True(t, busy)
			assert.Equal(t, tc.wantState, repo.state[event.ID])
			assert.Len(t, pub.sent, tc.wantSentMsgs)

			if tc.wantDLQ == "" {
				assert.Empty(t, dlq.entries)
				return
			}
			require.Len(t, dlq.entries, 1)
			entry := dlq.entries[0]
			assert.Equal(t, event.ID, entry.EventID)
			assert.Equal(t, tc.wantDLQ, entry.ErrorReason)
			assert.JSONEq(t, string(event.Payload), string(entry.Payload))
			require.NotNil(t, entry.ErrorMessage)
		})
	}
}

func TestProcessBatchContinuesPastFailures(t *testing.T) {
	first, second := newEvent(t, enums.EventOrderCreated), newEvent(t, enums.EventOrderCancelled)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{errs: []error{errors.New("transient"), nil}}
	reg := &fakeRegistry{resolved: &registry.ResolvedEvent{Descriptor: registry.EventDescriptor{Topic: "orders"}}}
	promReg := prometheus.NewRegistry()
	svc := newTestService(t, repo, pub, reg, &fakeDLQRepo{}, config.OutboxConfig{}, metrics.NewOutboxMetrics(promReg))

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "failed", repo.state[first.ID])
	assert.Equal(t, "published", repo.state[second.ID])

	count, err := testutil.GatherAndCount(promReg, "storefront_outbox_events_dispatched_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestProcessBatchEmptyOutbox(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, config.OutboxConfig{}, nil)
	busy, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestToMessageStampsAttributes(t *testing.T) {
	event := newEvent(t, enums.EventOrderStatusChanged)
	event.CreatedAt = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	msg := toMessage(event, "")
	assert.Equal(t, event.AggregateID.String(), msg.Key)
	assert.Equal(t, event.ID.String(), msg.Attributes[eventbus.AttrEventID])
	assert.Equal(t, string(enums.EventOrderStatusChanged), msg.Attributes[eventbus.AttrEventType])
	assert.Equal(t, "2026-05-01T10:00:00Z", msg.Attributes[eventbus.AttrCreatedAt])
	assert.Equal(t, []byte(event.Payload), msg.Data)

	assert.Equal(t, "env-1", toMessage(event, "env-1").Attributes[eventbus.AttrEventID])
}

func TestNewServiceDefaultsAndRequirements(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.ErrorContains(t, err, "config is required")

	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, config.OutboxConfig{}, nil)
	assert.Equal(t, defaultBatchSize, svc.batchSize)
	assert.Equal(t, defaultMaxAttempts, svc.maxAttempts)
	assert.Equal(t, defaultPoll, svc.poll)
}

func TestRunStopsWhenBrokerUnreachable(t *testing.T) {
	pub := &fakePublisher{pingErr: errors.New("connection refused")}
	svc := newTestService(t, &fakeRepo{}, pub, &fakeRegistry{}, &fakeDLQRepo{}, config.OutboxConfig{}, nil)
	require.ErrorContains(t, svc.Run(context.Background()), "pubsub ping")
}

func newTestService(t *testing.T, repo outboxRepository, pub eventbus.Publisher, reg registryResolver, dlq dlqRepository, oc config.OutboxConfig, m *metrics.OutboxMetrics) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:        &config.Config{Outbox: oc, Eventing: config.EventingConfig{Broker: config.BrokerPubSub}},
		Logger:        logger.Nop(),
		DB:            fakeDB{},
		Publisher:     pub,
		Repository:    repo,
		Registry:      reg,
		DLQRepository: dlq,
		Metrics:       m,
	})
	require.NoError(t, err)
	return svc
}

func newEvent(t *testing.T, eventType enums.OutboxEventType) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

type fakeRepo struct {
	events []models.OutboxEvent
	state  map[uuid.UUID]string
}

func (f *fakeRepo) mark(id uuid.UUID, state string) error {
	if f.state == nil {
		f.state = map[uuid.UUID]string{}
	}
	f.state[id] = state
	return nil
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error { return f.mark(id, "published") }

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error { return f.mark(id, "failed") }

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	return f.mark(id, "terminal")
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type sentMessage struct {
	topic string
	msg   eventbus.Message
}

type fakePublisher struct {
	errs    []error
	sent    []sentMessage
	pingErr error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, msg eventbus.Message) error {
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, sentMessage{topic: topic, msg: msg})
	}
	return err
}

func (f *fakePublisher) Ping(context.Context) error { return f.pingErr }

func (f *fakePublisher) Close() error { return nil }

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
