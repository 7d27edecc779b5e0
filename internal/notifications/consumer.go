package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/eventbus"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

// ConsumerName scopes the processed-event keys of this worker.
const ConsumerName = "notifications-worker"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type claimLedger interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns order and promotion domain events into user and admin notifications.
type Consumer struct {
	repo        repository
	claims      claimLedger
	logg        *logger.Logger
}

// NewConsumer builds a notification consumer.
func NewConsumer(repo repository, claims claimLedger, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if claims == nil {
		return nil, fmt.Errorf("dedupe ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:        repo,
		claims:      claims,
		logg:        logg,
	}, nil
}

// Run consumes from sub until the context is canceled.
func (c *Consumer) Run(ctx context.Context, sub eventbus.Subscriber) error {
	return sub.Receive(ctx, c.Handle)
}

// Handle processes one delivery. Undecodable messages are acknowledged and
// dropped; persistence failures release the dedupe claim and ask for redelivery.
func (c *Consumer) Handle(ctx context.Context, delivery eventbus.Delivery) error {
	eventType := enums.OutboxEventType(delivery.EventType())
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": delivery.ID,
		"event_type": string(eventType),
	})

	if !eventType.IsValid() {
		c.logg.Info(logCtx, "skipping unknown event")
		return nil
	}

	envelope, eventID, err := outbox.ParseEnvelope(delivery.Data)
	if err != nil {
		c.logg.Error(logCtx, "dropping malformed envelope", err)
		return nil
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	payload, err := registry.DecodePayload(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable payload", err)
		return nil
	}

	first, err := c.claims.Claim(ctx, ConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "dedupe claim failed", err)
		return err
	}
	if !first {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	for _, notification := range notificationsFor(payload) {
		notification.EventID = &eventID
		if err := c.repo.Create(ctx, notification); err != nil {
			c.logg.Error(logCtx, "notification handling failed", err)
			if relErr := c.claims.Release(ctx, ConsumerName, eventID); relErr != nil {
				c.logg.Error(logCtx, "dedupe release failed", relErr)
			}
			return err
		}
	}
	c.logg.Info(logCtx, "event processed")
	return nil
}

func notificationsFor(payload any) []*models.Notification {
	switch p := payload.(type) {
	case *payloads.OrderCreatedEvent:
		return []*models.Notification{
			forUser(p.UserID, enums.NotificationTypeOrder, "Order placed",
				fmt.Sprintf("Your order %s has been placed. Total: %d.", p.Code, p.TotalAmount),
				orderLink(p.OrderID)),
			forAdmins(enums.NotificationTypeOrder, "New order",
				fmt.Sprintf("Order %s was placed with %d item(s), total %d, paid by %s.", p.Code, p.ItemCount, p.TotalAmount, p.PaymentMethod),
				adminOrderLink(p.OrderID)),
		}
	case *payloads.OrderCancelledEvent:
		out := []*models.Notification{
			forUser(p.UserID, enums.NotificationTypeOrder, "Order cancelled",
				fmt.Sprintf("Your order %s has been cancelled.", p.Code),
				orderLink(p.OrderID)),
		}
		if p.CancelledBy != enums.UserRoleAdmin {
			out = append(out, forAdmins(enums.NotificationTypeOrder, "Order cancelled by customer",
				fmt.Sprintf("Order %s was cancelled by the customer.", p.Code),
				adminOrderLink(p.OrderID)))
		}
		return out
	case *payloads.OrderStatusChangedEvent:
		return []*models.Notification{
			forUser(p.UserID, enums.NotificationTypeOrder, "Order "+string(p.To),
				fmt.Sprintf("Your order %s is now %s.", p.Code, p.To),
				orderLink(p.OrderID)),
		}
	case *payloads.OrderPaymentUpdatedEvent:
		return []*models.Notification{
			forUser(p.UserID, enums.NotificationTypePayment, "Payment "+string(p.To),
				fmt.Sprintf("Payment for order %s is now %s.", p.Code, p.To),
				orderLink(p.OrderID)),
		}
	case *payloads.PromotionExpiredEvent:
		return []*models.Notification{
			forAdmins(enums.NotificationTypeSystem, "Promotion expired",
				fmt.Sprintf("Promotion %s ended and was deactivated.", p.Code),
				fmt.Sprintf("/admin/promotions/%s", p.PromotionID)),
		}
	default:
		return nil
	}
}

func forUser(userID uuid.UUID, kind enums.NotificationType, title, message, link string) *models.Notification {
	id := userID
	return &models.Notification{
		UserID:  &id,
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    &link,
	}
}

func forAdmins(kind enums.NotificationType, title, message, link string) *models.Notification {
	return &models.Notification{
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    &link,
	}
}

func orderLink(orderID uuid.UUID) string {
	return fmt.Sprintf("/orders/%s", orderID)
}

func adminOrderLink(orderID uuid.UUID) string {
	return fmt.Sprintf("/admin/orders/%s", orderID)
}
