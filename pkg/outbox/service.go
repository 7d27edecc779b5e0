package outbox

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var errNoTx = errors.New("outbox writes need the caller's transaction")

// Service records domain events in outbox_events. Every write joins the
// caller's transaction, so an event exists exactly when its change committed.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

// NewService builds an emitter. logg may be nil.
func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	return s.emit(ctx, tx, event, false)
}

// EmitOnce skips the write when the aggregate already has an event of this
// type, for jobs that may revisit the same row.
func (s *Service) EmitOnce(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	return s.emit(ctx, tx, event, true)
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, event DomainEvent, once bool) error {
	if tx == nil {
		return errNoTx
	}
	row, env, err := event.seal()
	if err != nil {
		return err
	}
	if once {
		exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
		if err != nil || exists {
			return err
		}
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID.String(),
	}), "outbox event queued")
	return nil
}
