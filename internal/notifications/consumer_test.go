package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/eventbus"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type memoryRepo struct {
	mu      sync.Mutex
	created []*models.Notification
	failOn  int
}

func (m *memoryRepo) Create(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn > 0 && len(m.created)+1 == m.failOn {
		return errors.New("db down")
	}
	m.created = append(m.created, n)
	return nil
}

type memoryTracker struct {
	seen    map[uuid.UUID]bool
	deleted []uuid.UUID
	err     error
}

func newMemoryTracker() *memoryTracker {
	return &memoryTracker{seen: map[uuid.UUID]bool{}}
}

func (m *memoryTracker) Claim(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memoryTracker) Release(_ context.Context, _ string, id uuid.UUID) error {
	delete(m.seen, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func delivery(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, data any) eventbus.Delivery {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return eventbus.Delivery{
		ID:         "msg-" + eventID.String(),
		Data:       envelope,
		Attributes: map[string]string{eventbus.AttrEventType: string(eventType)},
	}
}

func newTestConsumer(t *testing.T, repo *memoryRepo, tracker *memoryTracker) *Consumer {
	t.Helper()
	c, err := NewConsumer(repo, tracker, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestConsumerOrderCreatedNotifiesUserAndAdmins(t *testing.T) {
	repo := &memoryRepo{}
	c := newTestConsumer(t, repo, newMemoryTracker())
	userID := uuid.New()
	eventID := uuid.New()

	err := c.Handle(context.Background(), delivery(t, enums.EventOrderCreated, eventID, payloads.OrderCreatedEvent{
		OrderID:       uuid.New(),
		Code:          "FSABC123",
		UserID:        userID,
		TotalAmount:   210000,
		PaymentMethod: enums.PaymentMethodCOD,
		ItemCount:     2,
	}))
	require.NoError(t, err)
	require.Len(t, repo.created, 2)

	user, admin := repo.created[0], repo.created[1]
	require.NotNil(t, user.UserID)
	assert.Equal(t, userID, *user.UserID)
	assert.Contains(t, user.Message, "FSABC123")
	assert.Nil(t, admin.UserID)
	assert.Equal(t, eventID, *admin.EventID)
}

func TestConsumerSkipsDuplicates(t *testing.T) {
	repo := &memoryRepo{}
	c := newTestConsumer(t, repo, newMemoryTracker())
	msg := delivery(t, enums.EventOrderStatusChanged, uuid.New(), payloads.OrderStatusChangedEvent{
		OrderID: uuid.New(), Code: "FS1", UserID: uuid.New(), From: enums.OrderStatusPending, To: enums.OrderStatusShipped,
	})

	require.NoError(t, c.Handle(context.Background(), msg))
	require.NoError(t, c.Handle(context.Background(), msg))
	assert.Len(t, repo.created, 1)
	assert.Equal(t, "Order shipped", repo.created[0].Title)
}

func TestConsumerAdminCancellationOnlyNotifiesUser(t *testing.T) {
	repo := &memoryRepo{}
	c := newTestConsumer(t, repo, newMemoryTracker())

	require.NoError(t, c.Handle(context.Background(), delivery(t, enums.EventOrderCancelled, uuid.New(), payloads.OrderCancelledEvent{
		OrderID: uuid.New(), Code: "FS2", UserID: uuid.New(), CancelledBy: enums.UserRoleAdmin,
	})))
	assert.Len(t, repo.created, 1)

	require.NoError(t, c.Handle(context.Background(), delivery(t, enums.EventOrderCancelled, uuid.New(), payloads.OrderCancelledEvent{
		OrderID: uuid.New(), Code: "FS3", UserID: uuid.New(), CancelledBy: enums.UserRoleUser,
	})))
	assert.Len(t, repo.created, 3)
}

func TestConsumerDropsMalformedMessages(t *testing.T) {
	repo := &memoryRepo{}
	tracker := newMemoryTracker()
	c := newTestConsumer(t, repo, tracker)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, eventbus.Delivery{Attributes: map[string]string{eventbus.AttrEventType: "mystery"}}))
	require.NoError(t, c.Handle(ctx, eventbus.Delivery{
		Data:       []byte("{"),
		Attributes: map[string]string{eventbus.AttrEventType: string(enums.EventOrderCreated)},
	}))

	bad := delivery(t, enums.EventOrderCreated, uuid.New(), map[string]any{"order_id": 42})
	require.NoError(t, c.Handle(ctx, bad))

	assert.Empty(t, repo.created)
	assert.Empty(t, tracker.seen)
}

func TestConsumerReleasesMarkOnPersistFailure(t *testing.T) {
	repo := &memoryRepo{failOn: 1}
	tracker := newMemoryTracker()
	c := newTestConsumer(t, repo, tracker)
	eventID := uuid.New()
	msg := delivery(t, enums.EventOrderPaymentUpdated, eventID, payloads.OrderPaymentUpdatedEvent{
		OrderID: uuid.New(), Code: "FS4", UserID: uuid.New(), From: enums.PaymentStatusPending, To: enums.PaymentStatusCompleted,
	})

	require.Error(t, c.Handle(context.Background(), msg))
	assert.Equal(t, []uuid.UUID{eventID}, tracker.deleted)

	repo.failOn = 0
	require.NoError(t, c.Handle(context.Background(), msg))
	require.Len(t, repo.created, 1)
	assert.Equal(t, enums.NotificationTypePayment, repo.created[0].Type)
}

func TestConsumerRedeliversWhenTrackerFails(t *testing.T) {
	tracker := newMemoryTracker()
	tracker.err = errors.New("redis down")
	c := newTestConsumer(t, &memoryRepo{}, tracker)

	err := c.Handle(context.Background(), delivery(t, enums.EventPromotionExpired, uuid.New(), payloads.PromotionExpiredEvent{
		PromotionID: uuid.New(), Code: "SAVE10",
	}))
	require.Error(t, err)
}
