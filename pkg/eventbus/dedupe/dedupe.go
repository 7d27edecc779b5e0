// Package dedupe remembers which broker events a consumer already handled so
// at-least-once redeliveries are applied once.
package dedupe

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the part of the Redis client a Ledger needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Ledger records claims as sf:idempotency:consumed:<consumer>:<event_id>,
// valued with the owning process id and kept for ttl.
type Ledger struct {
	store Store
	ttl   time.Duration
	owner string
}

func New(store Store, ttl time.Duration, owner string) (*Ledger, error) {
	switch {
	case store == nil:
		return nil, errors.New("dedupe store is required")
	case ttl <= 0:
		return nil, errors.New("dedupe ttl must be positive")
	case owner == "":
		return nil, errors.New("dedupe owner is required")
	}
	return &Ledger{store: store, ttl: ttl, owner: owner}, nil
}

// Claim reports true when this call is the first to see eventID for consumer.
func (l *Ledger) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return l.store.SetNX(ctx, key, l.owner, l.ttl)
}

// Release drops a claim made by this process so a redelivery is handled again.
// Claims owned by another process are left in place.
func (l *Ledger) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return err
	}
	_, err = l.store.CompareAndDelete(ctx, key, l.owner)
	return err
}

func (l *Ledger) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return l.store.IdempotencyKey("consumed:"+consumer, eventID.String()), nil
}
