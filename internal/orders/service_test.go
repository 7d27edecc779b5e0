package orders_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type env struct {
	client   *db.Client
	orders   orders.Service
	checkout checkout.Service
	carts    cart.Service
	products *product.Repository
	outbox   *outbox.Repository
}

var admin = orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

func newEnv(t *testing.T) *env {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	products := product.NewRepository(conn)
	validator := promotions.NewValidator(promotions.NewRepository(conn))
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)
	publisher := outbox.NewService(outboxRepo, logger.Nop())

	carts, err := cart.NewService(cartRepo, products, validator, client)
	require.NoError(t, err)
	placer, err := checkout.NewService(checkout.Deps{
		Tx:         client,
		Carts:      cartRepo,
		Products:   products,
		Promotions: validator,
		Orders:     orderRepo,
		Shipping:   pricing.ShippingPolicy{FreeShippingThreshold: 5000000, StandardShippingFee: 30000},
		Outbox:     publisher,
	})
	require.NoError(t, err)
	svc, err := orders.NewService(orderRepo, products, client, publisher, nil)
	require.NoError(t, err)

	return &env{client: client, orders: svc, checkout: placer, carts: carts, products: products, outbox: outboxRepo}
}

func (e *env) product(t *testing.T, price int64, stock int) models.Product {
	t.Helper()
	p := models.Product{SKU: uuid.NewString(), Name: "Item " + uuid.NewString()[:6], Slug: uuid.NewString(), Price: price, Stock: stock}
	require.NoError(t, e.products.Create(context.Background(), &p))
	return p
}

func (e *env) stock(t *testing.T, id uuid.UUID) (int, int) {
	t.Helper()
	var p models.Product
	require.NoError(t, e.client.DB().Where("id = ?", id).First(&p).Error)
	return p.Stock, p.SoldCount
}

func (e *env) place(t *testing.T, userID uuid.UUID, method string, lines map[uuid.UUID]int) *models.Order {
	t.Helper()
	ctx := context.Background()
	for id, qty := range lines {
		_, err := e.carts.AddItem(ctx, userID, id, qty)
		require.NoError(t, err)
	}
	input := checkout.PlaceOrderInput{
		UserID: userID,
		ShippingAddress: types.ShippingAddress{
			FullName: "Tran Thi B", Phone: "0912345678", Province: "Ha Noi",
			District: "Ba Dinh", Ward: "Kim Ma", Street: "12 Kim Ma",
		},
		PaymentMethod: method,
	}
	if method == "BANK" {
		tx := "TX-" + uuid.NewString()[:8]
		input.TransactionID = &tx
	}
	order, err := e.checkout.PlaceOrder(ctx, input)
	require.NoError(t, err)
	return order
}

func TestPlaceThenCancelRestoresStockExactly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	a := e.product(t, 1000, 10)
	b := e.product(t, 2500, 4)
	require.NoError(t, e.client.DB().Model(&models.Product{}).Where("id = ?", a.ID).Update("sold_count", 7).Error)

	order := e.place(t, userID, "COD", map[uuid.UUID]int{a.ID: 3, b.ID: 4})
	stock, sold := e.stock(t, a.ID)
	require.Equal(t, 7, stock)
	require.Equal(t, 10, sold)
	stock, sold = e.stock(t, b.ID)
	require.Equal(t, 0, stock)
	require.Equal(t, 4, sold)

	owner := orders.Actor{UserID: userID, Role: enums.UserRoleUser}
	cancelled, err := e.orders.Cancel(ctx, owner, order.ID, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, "changed my mind", *cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	stock, sold = e.stock(t, a.ID)
	require.Equal(t, 10, stock)
	require.Equal(t, 7, sold)
	stock, sold = e.stock(t, b.ID)
	require.Equal(t, 4, stock)
	require.Equal(t, 0, sold)

	_, err = e.orders.Cancel(ctx, owner, order.ID, "")
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonCannotCancel))

	events, err := e.outbox.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, enums.EventOrderCancelled, events[1].EventType)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[1].Payload, &envelope))
	var payload payloads.OrderCancelledEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.Len(t, payload.Restocked, 2)
	require.Equal(t, enums.UserRoleUser, payload.CancelledBy)
}

func TestCancelSkipsVanishedProducts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	a := e.product(t, 1000, 5)
	order := e.place(t, userID, "COD", map[uuid.UUID]int{a.ID: 2})

	require.NoError(t, e.client.DB().Where("id = ?", a.ID).Delete(&models.Product{}).Error)

	_, err := e.orders.Cancel(ctx, admin, order.ID, "")
	require.NoError(t, err)
}

func TestCancelSoftDeletedProductStillRestocks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	a := e.product(t, 1000, 5)
	order := e.place(t, userID, "COD", map[uuid.UUID]int{a.ID: 2})
	_, err := e.products.SoftDelete(ctx, a.ID)
	require.NoError(t, err)

	_, err = e.orders.Cancel(ctx, admin, order.ID, "")
	require.NoError(t, err)
	stock, sold := e.stock(t, a.ID)
	require.Equal(t, 5, stock)
	require.Equal(t, 0, sold)
}

func TestOnlyOwnerOrAdminCanSeeOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	a := e.product(t, 1000, 5)
	order := e.place(t, userID, "COD", map[uuid.UUID]int{a.ID: 1})

	_, err := e.orders.Get(ctx, orders.Actor{UserID: userID, Role: enums.UserRoleUser}, order.ID)
	require.NoError(t, err)
	_, err = e.orders.Get(ctx, admin, order.ID)
	require.NoError(t, err)

	stranger := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleUser}
	_, err = e.orders.Get(ctx, stranger, order.ID)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
	_, err = e.orders.Cancel(ctx, stranger, order.ID, "")
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = e.orders.Get(ctx, admin, uuid.New())
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonOrderNotFound))
}

func TestStatusLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	a := e.product(t, 1000, 5)
	order := e.place(t, userID, "COD", map[uuid.UUID]int{a.ID: 1})

	_, err := e.orders.UpdateStatus(ctx, orders.Actor{UserID: userID, Role: enums.UserRoleUser}, order.ID, "processing")
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = e.orders.UpdateStatus(ctx, admin, order.ID, "teleported")
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidStatus))

	_, err = e.orders.UpdateStatus(ctx, admin, order.ID, "shipped")
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidTransition))

	for _, next := range []string{"processing", "shipped", "delivered"} {
		dto, err := e.orders.UpdateStatus(ctx, admin, order.ID, next)
		require.NoError(t, err)
		require.Equal(t, enums.OrderStatus(next), dto.Status)
	}

	got, err := e.orders.Get(ctx, admin, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, got.PaymentStatus, "COD is paid on delivery")
	require.NotNil(t, got.DeliveredAt)

	_, err = e.orders.UpdateStatus(ctx, admin, order.ID, "processing")
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonOrderDelivered))
	got, err = e.orders.Get(ctx, admin, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, got.Status)

	_, err = e.orders.UpdatePaymentStatus(ctx, admin, order.ID, "failed")
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonOrderDelivered))
}

func TestAdminCancelViaStatusRestocks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.product(t, 1000, 5)
	order := e.place(t, uuid.New(), "COD", map[uuid.UUID]int{a.ID: 3})

	_, err := e.orders.UpdateStatus(ctx, admin, order.ID, "processing")
	require.NoError(t, err)
	dto, err := e.orders.UpdateStatus(ctx, admin, order.ID, "cancelled")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, dto.Status)

	stock, sold := e.stock(t, a.ID)
	require.Equal(t, 5, stock)
	require.Equal(t, 0, sold)
}

func TestPaymentStatusTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.product(t, 1000, 5)
	order := e.place(t, uuid.New(), "BANK", map[uuid.UUID]int{a.ID: 1})
	require.Equal(t, enums.PaymentStatusCompleted, order.PaymentStatus)

	_, err := e.orders.UpdatePaymentStatus(ctx, admin, order.ID, "completed")
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidTransition))

	_, err = e.orders.UpdatePaymentStatus(ctx, admin, order.ID, "refunded")
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidPaymentStatus))

	dto, err := e.orders.UpdatePaymentStatus(ctx, admin, order.ID, "failed")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusFailed, dto.PaymentStatus)

	dto, err = e.orders.UpdatePaymentStatus(ctx, admin, order.ID, "pending")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPending, dto.PaymentStatus)
}

func TestTrackingAndListing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	a := e.product(t, 1000, 50)
	var placed []*models.Order
	for i := 0; i < 3; i++ {
		placed = append(placed, e.place(t, userID, "COD", map[uuid.UUID]int{a.ID: 1}))
		time.Sleep(2 * time.Millisecond)
	}
	e.place(t, uuid.New(), "COD", map[uuid.UUID]int{a.ID: 1})

	track, err := e.orders.Track(ctx, " "+placed[0].Code+" ")
	require.NoError(t, err)
	require.Equal(t, placed[0].Code, track.Code)
	require.Equal(t, "*******678", track.Phone)

	_, err = e.orders.Track(ctx, "FSNOPE")
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonOrderNotFound))

	owner := orders.Actor{UserID: userID, Role: enums.UserRoleUser}
	page, err := e.orders.ListMine(ctx, owner, nil, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.Equal(t, placed[2].ID, page.Orders[0].ID)
	require.NotEmpty(t, page.NextCursor)

	page, err = e.orders.ListMine(ctx, owner, nil, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	require.Equal(t, placed[0].ID, page.Orders[0].ID)
	require.Empty(t, page.NextCursor)

	_, err = e.orders.Cancel(ctx, owner, placed[1].ID, "")
	require.NoError(t, err)
	cancelled := enums.OrderStatusCancelled
	page, err = e.orders.ListMine(ctx, owner, &cancelled, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)

	all, err := e.orders.AdminList(ctx, admin, orders.AdminFilter{Search: "fs"}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, all.Orders, 4)
}

func TestStatsAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	a := e.product(t, 100000, 50)
	delivered := e.place(t, userID, "COD", map[uuid.UUID]int{a.ID: 2})
	pending := e.place(t, userID, "COD", map[uuid.UUID]int{a.ID: 1})

	for _, next := range []string{"processing", "shipped", "delivered"} {
		_, err := e.orders.UpdateStatus(ctx, admin, delivered.ID, next)
		require.NoError(t, err)
	}

	mine, err := e.orders.MyStats(ctx, orders.Actor{UserID: userID, Role: enums.UserRoleUser})
	require.NoError(t, err)
	require.Equal(t, delivered.TotalAmount, mine.TotalSpent)
	require.Len(t, mine.ByStatus, 2)

	stats, err := e.orders.AdminStats(ctx, admin, nil, nil)
	require.NoError(t, err)
	require.Equal(t, delivered.TotalAmount, stats.TotalRevenue)
	require.Len(t, stats.BestSellers, 1)
	require.Equal(t, int64(2), stats.BestSellers[0].TotalSold)

	err = e.orders.Delete(ctx, admin, pending.ID)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonOrderNotDeletable))

	require.NoError(t, e.orders.Delete(ctx, admin, delivered.ID))
	var lines int64
	require.NoError(t, e.client.DB().Model(&models.OrderLineItem{}).Where("order_id = ?", delivered.ID).Count(&lines).Error)
	require.Zero(t, lines)
}
