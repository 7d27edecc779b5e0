package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor is the authenticated principal acting on an order.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

func (a Actor) ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// Service drives the order lifecycle after placement.
type Service interface {
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error)
	Track(ctx context.Context, code string) (*TrackingDTO, error)
	ListMine(ctx context.Context, actor Actor, status *enums.OrderStatus, params pagination.Params) (*OrderPageDTO, error)
	MyStats(ctx context.Context, actor Actor) (*UserStatsDTO, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, target string) (*OrderDTO, error)
	UpdatePaymentStatus(ctx context.Context, actor Actor, orderID uuid.UUID, target string) (*OrderDTO, error)
	AdminList(ctx context.Context, actor Actor, filter AdminFilter, params pagination.Params) (*OrderPageDTO, error)
	AdminStats(ctx context.Context, actor Actor, from, to *time.Time) (*AdminStatsDTO, error)
	Delete(ctx context.Context, actor Actor, orderID uuid.UUID) error
}

type service struct {
	repo     Repository
	products *product.Repository
	tx       txRunner
	outbox   outboxPublisher
	metrics  *metrics.OrderMetrics
	now      func() time.Time
}

// NewService builds the order lifecycle service. metrics may be nil.
func NewService(repo Repository, products *product.Repository, tx txRunner, publisher outboxPublisher, m *metrics.OrderMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     repo,
		products: products,
		tx:       tx,
		outbox:   publisher,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

var errForbidden = pkgerrors.New(pkgerrors.CodeForbidden, "access denied")

func load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func authorize(actor Actor, order *models.Order) error {
	if actor.IsAdmin() || actor.UserID == order.UserID {
		return nil
	}
	return errForbidden
}

func requireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return errForbidden
	}
	return nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, order); err != nil {
		return nil, err
	}
	dto := NewOrderDTO(*order)
	return &dto, nil
}

func (s *service) Track(ctx context.Context, code string) (*TrackingDTO, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code required")
	}
	order, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by code")
	}
	dto := NewTrackingDTO(*order)
	return &dto, nil
}

func (s *service) ListMine(ctx context.Context, actor Actor, status *enums.OrderStatus, params pagination.Params) (*OrderPageDTO, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidStatus, "invalid order status")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rows, next, err := s.repo.ListForUser(ctx, actor.UserID, status, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return newPage(rows, next), nil
}

func (s *service) MyStats(ctx context.Context, actor Actor) (*UserStatsDTO, error) {
	scope := StatsScope{UserID: &actor.UserID}
	buckets, err := s.repo.StatusBreakdown(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order stats")
	}
	stats := &UserStatsDTO{ByStatus: buckets}
	for _, b := range buckets {
		if b.Status == enums.OrderStatusDelivered {
			stats.TotalSpent = b.Total
		}
	}
	return stats, nil
}

func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderDTO, error) {
	var out *OrderDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := load(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if err := authorize(actor, order); err != nil {
			return err
		}
		if !Cancellable(order.Status) {
			return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonCannotCancel, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}
		if err := s.cancelTx(ctx, tx, actor, order, reason); err != nil {
			return err
		}
		dto := NewOrderDTO(*order)
		out = &dto
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// cancelTx flips the order to cancelled and returns every frozen line's
// quantity to its product. Lines whose product row is gone are skipped.
func (s *service) cancelTx(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, reason string) error {
	now := s.now()
	from := order.Status

	var cancelReason *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		cancelReason = &trimmed
	}
	ok, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, order.ID, from, map[string]any{
		"status":        enums.OrderStatusCancelled,
		"cancel_reason": cancelReason,
		"cancelled_at":  now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
	}

	products := s.products.WithTx(tx)
	restocked := make([]payloads.RestockedLine, 0, len(order.Items))
	for _, item := range order.Items {
		found, err := products.RestoreStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
		if found {
			restocked = append(restocked, payloads.RestockedLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	}

	order.Status = enums.OrderStatusCancelled
	order.CancelReason = cancelReason
	order.CancelledAt = &now
	order.UpdatedAt = now

	s.metrics.IncTransition(string(from), string(enums.OrderStatusCancelled))
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(),
		OccurredAt:    now,
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			Code:        order.Code,
			UserID:      order.UserID,
			Reason:      strings.TrimSpace(reason),
			CancelledBy: actor.Role,
			CancelledAt: now,
			Restocked:   restocked,
		},
	})
}

func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, target string) (*OrderDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	next, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(target)))
	if err != nil {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidStatus, "invalid order status")
	}

	var out *OrderDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if err := CheckStatusTransition(order.Status, next); err != nil {
			return err
		}
		if next == enums.OrderStatusCancelled {
			if err := s.cancelTx(ctx, tx, actor, order, ""); err != nil {
				return err
			}
			dto := NewOrderDTO(*order)
			out = &dto
			return nil
		}

		now := s.now()
		from := order.Status
		updates := map[string]any{"status": next}
		if next == enums.OrderStatusDelivered {
			updates["delivered_at"] = now
			order.DeliveredAt = &now
			if order.PaymentMethod == enums.PaymentMethodCOD && order.PaymentStatus != enums.PaymentStatusCompleted {
				updates["payment_status"] = enums.PaymentStatusCompleted
				order.PaymentStatus = enums.PaymentStatusCompleted
			}
		}
		ok, err := repo.UpdateIfStatus(ctx, order.ID, from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
		}
		order.Status = next
		order.UpdatedAt = now

		s.metrics.IncTransition(string(from), string(next))
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.ref(),
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID: order.ID,
				Code:    order.Code,
				UserID:  order.UserID,
				From:    from,
				To:      next,
			},
		}); err != nil {
			return err
		}
		dto := NewOrderDTO(*order)
		out = &dto
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) UpdatePaymentStatus(ctx context.Context, actor Actor, orderID uuid.UUID, target string) (*OrderDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	next, err := enums.ParsePaymentStatus(strings.ToLower(strings.TrimSpace(target)))
	if err != nil {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidPaymentStatus, "invalid payment status")
	}

	var out *OrderDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if err := CheckPaymentTransition(order.Status, order.PaymentStatus, next); err != nil {
			return err
		}
		from := order.PaymentStatus
		ok, err := repo.UpdateIfStatus(ctx, order.ID, order.Status, map[string]any{"payment_status": next})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
		}
		order.PaymentStatus = next
		order.UpdatedAt = s.now()

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.ref(),
			Data: payloads.OrderPaymentUpdatedEvent{
				OrderID: order.ID,
				Code:    order.Code,
				UserID:  order.UserID,
				From:    from,
				To:      next,
			},
		}); err != nil {
			return err
		}
		dto := NewOrderDTO(*order)
		out = &dto
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) AdminList(ctx context.Context, actor Actor, filter AdminFilter, params pagination.Params) (*OrderPageDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidStatus, "invalid order status")
	}
	if filter.PaymentStatus != nil && !filter.PaymentStatus.IsValid() {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidPaymentStatus, "invalid payment status")
	}
	if filter.PaymentMethod != nil && !filter.PaymentMethod.IsValid() {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidPayment, "invalid payment method")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rows, next, err := s.repo.ListAll(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return newPage(rows, next), nil
}

func (s *service) AdminStats(ctx context.Context, actor Actor, from, to *time.Time) (*AdminStatsDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	scope := StatsScope{From: from, To: to}
	buckets, err := s.repo.StatusBreakdown(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order stats")
	}
	revenue, err := s.repo.Revenue(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order revenue")
	}
	best, err := s.repo.BestSellers(ctx, scope, 10)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "best sellers")
	}
	return &AdminStatsDTO{ByStatus: buckets, TotalRevenue: revenue, BestSellers: best}, nil
}

func (s *service) Delete(ctx context.Context, actor Actor, orderID uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if !order.Status.IsTerminal() {
			return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonOrderNotDeletable, "only delivered or cancelled orders can be deleted")
		}
		if err := repo.Delete(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
		}
		return nil
	})
}

func newPage(rows []models.Order, next string) *OrderPageDTO {
	page := &OrderPageDTO{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		page.Orders = append(page.Orders, NewOrderDTO(row))
	}
	return page
}
