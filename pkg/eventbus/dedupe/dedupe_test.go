package dedupe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func TestClaimOncePerConsumer(t *testing.T) {
	store := newMemoryStore()
	ledger, err := New(store, 72*time.Hour, "worker-a")
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	first, err := ledger.Claim(ctx, "notifications-worker", eventID)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := ledger.Claim(ctx, "notifications-worker", eventID)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := ledger.Claim(ctx, "analytics", eventID)
	require.NoError(t, err)
	assert.True(t, other)

	key := "sf:idempotency:consumed:notifications-worker:" + eventID.String()
	assert.Equal(t, "worker-a", store.values[key])
	assert.Equal(t, 72*time.Hour, store.ttls[key])
}

func TestReleaseOnlyDropsOwnClaims(t *testing.T) {
	store := newMemoryStore()
	a, err := New(store, time.Hour, "worker-a")
	require.NoError(t, err)
	b, err := New(store, time.Hour, "worker-b")
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	claimed, err := a.Claim(ctx, "c", eventID)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, b.Release(ctx, "c", eventID))
	claimed, err = b.Claim(ctx, "c", eventID)
	require.NoError(t, err)
	assert.False(t, claimed, "worker-b must not clear worker-a's claim")

	require.NoError(t, a.Release(ctx, "c", eventID))
	claimed, err = b.Claim(ctx, "c", eventID)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimValidation(t *testing.T) {
	store := newMemoryStore()
	ledger, err := New(store, time.Hour, "w")
	require.NoError(t, err)

	_, err = ledger.Claim(context.Background(), "", uuid.New())
	assert.ErrorContains(t, err, "consumer name")
	_, err = ledger.Claim(context.Background(), "c", uuid.Nil)
	assert.ErrorContains(t, err, "event id")

	store.err = errors.New("redis down")
	_, err = ledger.Claim(context.Background(), "c", uuid.New())
	assert.EqualError(t, err, "redis down")
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, time.Hour, "w")
	assert.Error(t, err)
	_, err = New(newMemoryStore(), 0, "w")
	assert.Error(t, err)
	_, err = New(newMemoryStore(), time.Hour, "")
	assert.Error(t, err)
}

func ExampleLedger_Claim() {
	ledger, _ := New(newMemoryStore(), 7*24*time.Hour, "worker-0")
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	for range 2 {
		first, _ := ledger.Claim(context.Background(), "notifications-worker", eventID)
		fmt.Println(first)
	}
	// Output:
	// true
	// false
}
