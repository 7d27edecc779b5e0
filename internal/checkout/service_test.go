package checkout

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

var refNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	client   *db.Client
	checkout Service
	carts    cart.Service
	products *product.Repository
	promos   *promotions.Repository
	outbox   *outbox.Repository
	users    users.Service
}

func newHarness(t *testing.T, codes CodeGenerator) *harness {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	products := product.NewRepository(conn)
	promos := promotions.NewRepository(conn)
	validator := promotions.NewValidator(promos)
	cartRepo := cart.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)

	carts, err := cart.NewService(cartRepo, products, validator, client)
	require.NoError(t, err)
	accounts, err := users.NewService(users.ServiceParams{
		Users:     users.NewRepository(conn),
		Addresses: users.NewAddressRepository(conn),
		Tx:        client,
	})
	require.NoError(t, err)

	svc, err := NewService(Deps{
		Tx:         client,
		Carts:      cartRepo,
		Products:   products,
		Promotions: validator,
		Orders:     orders.NewRepository(conn),
		Shipping:   pricing.ShippingPolicy{FreeShippingThreshold: 5000000, StandardShippingFee: 30000},
		Outbox:     outbox.NewService(outboxRepo, logger.Nop()),
		Metrics:    metrics.NewOrderMetrics(prometheus.NewRegistry()),
		Addresses:  accounts,
		Codes:      codes,
		Now:        func() time.Time { return refNow },
	})
	require.NoError(t, err)

	return &harness{client: client, checkout: svc, carts: carts, products: products, promos: promos, outbox: outboxRepo, users: accounts}
}

func (h *harness) product(t *testing.T, name string, price int64, stock int) models.Product {
	t.Helper()
	p := models.Product{SKU: uuid.NewString(), Name: name, Slug: uuid.NewString(), Price: price, Stock: stock, Images: []string{"https://cdn.example.com/" + name + ".jpg"}}
	require.NoError(t, h.products.Create(context.Background(), &p))
	return p
}

func (h *harness) reload(t *testing.T, id uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, h.client.DB().Where("id = ?", id).First(&p).Error)
	return p
}

func address() types.ShippingAddress {
	return types.ShippingAddress{
		FullName: "Nguyen Van A",
		Phone:    "0901234567",
		Province: "Ho Chi Minh",
		District: "District 1",
		Ward:     "Ben Nghe",
		Street:   "1 Le Loi",
	}
}

func strPtr(s string) *string { return &s }

func TestPlaceOrderWithDiscount(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	p := h.product(t, "Lamp", 100000, 10)
	require.NoError(t, h.promos.Create(ctx, &models.Promotion{
		Code:          "SAVE10",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		StartDate:     refNow.Add(-time.Hour),
		EndDate:       refNow.Add(time.Hour),
		IsActive:      true,
	}))
	_, err := h.carts.AddItem(ctx, userID, p.ID, 2)
	require.NoError(t, err)

	order, err := h.checkout.PlaceOrder(ctx, PlaceOrderInput{
		UserID:          userID,
		Role:            enums.UserRoleUser,
		ShippingAddress: address(),
		PaymentMethod:   "cod",
		DiscountCode:    strPtr("save10"),
	})
	require.NoError(t, err)

	require.Equal(t, int64(200000), order.SubTotal)
	require.Equal(t, int64(20000), order.DiscountAmount)
	require.Equal(t, int64(30000), order.ShippingFee)
	require.Equal(t, int64(210000), order.TotalAmount)
	require.Equal(t, "SAVE10", *order.DiscountCode)
	require.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.Regexp(t, `^FS[0-9A-Z]+$`, order.Code)
	require.Len(t, order.Items, 1)
	require.Equal(t, "Lamp", order.Items[0].Name)
	require.Equal(t, int64(200000), order.Items[0].LineTotal)

	after := h.reload(t, p.ID)
	require.Equal(t, 8, after.Stock)
	require.Equal(t, 2, after.SoldCount)

	view, err := h.carts.GetCart(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, view.Items)
	require.Zero(t, view.Total)

	events, err := h.outbox.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderCreated, events[0].EventType)
	require.Equal(t, order.ID, events[0].AggregateID)

	var env outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &env))
	require.JSONEq(t, `{"order_id":"`+order.ID.String()+`","code":"`+order.Code+`","user_id":"`+userID.String()+`","total_amount":210000,"payment_method":"COD","payment_status":"pending","item_count":2,"discount_code":"SAVE10"}`, string(env.Data))
}

func TestPlaceOrderShipsToSavedAddress(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	buyer, err := users.NewRepository(h.client.DB()).Create(ctx, users.CreateUserDTO{Email: "buyer@example.com", PasswordHash: "h", FullName: "Buyer"})
	require.NoError(t, err)
	saved := address()
	saved.Street = "99 Hai Ba Trung"
	entry, err := h.users.AddAddress(ctx, buyer.ID, users.AddressInput{Shipping: saved})
	require.NoError(t, err)

	p := h.product(t, "Mug", 40000, 3)
	_, err = h.carts.AddItem(ctx, buyer.ID, p.ID, 1)
	require.NoError(t, err)

	stranger := uuid.New()
	_, err = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: stranger, AddressID: &entry.ID, PaymentMethod: "COD"})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonAddressNotFound))

	order, err := h.checkout.PlaceOrder(ctx, PlaceOrderInput{
		UserID:          buyer.ID,
		AddressID:       &entry.ID,
		ShippingAddress: types.ShippingAddress{Street: "ignored"},
		PaymentMethod:   "COD",
	})
	require.NoError(t, err)
	require.Equal(t, saved, order.ShippingAddress)
}

func TestPlaceOrderIgnoresCartDiscountWithoutCode(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	p := h.product(t, "Desk", 6000000, 2)
	require.NoError(t, h.promos.Create(ctx, &models.Promotion{
		Code:          "FLAT",
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(1000),
		StartDate:     refNow.Add(-time.Hour),
		EndDate:       refNow.Add(time.Hour),
		IsActive:      true,
	}))
	_, err := h.carts.AddItem(ctx, userID, p.ID, 1)
	require.NoError(t, err)
	_, err = h.carts.ApplyDiscount(ctx, userID, "FLAT")
	require.NoError(t, err)

	order, err := h.checkout.PlaceOrder(ctx, PlaceOrderInput{
		UserID:          userID,
		ShippingAddress: address(),
		PaymentMethod:   "BANK",
		TransactionID:   strPtr("TX-1"),
	})
	require.NoError(t, err)
	require.Nil(t, order.DiscountCode)
	require.Zero(t, order.DiscountAmount)
	require.Zero(t, order.ShippingFee, "above the free shipping threshold")
	require.Equal(t, int64(6000000), order.TotalAmount)
	require.Equal(t, enums.PaymentStatusCompleted, order.PaymentStatus)
}

func TestPlaceOrderValidatesInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	bad := address()
	bad.Ward = "  "
	_, err := h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: userID, ShippingAddress: bad, PaymentMethod: "COD"})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidAddress))
	require.Equal(t, map[string]any{"missing": []string{"ward"}}, pkgerrors.As(err).Details())

	_, err = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: userID, ShippingAddress: address(), PaymentMethod: "CARD"})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidPayment))

	_, err = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: userID, ShippingAddress: address(), PaymentMethod: "BANK", TransactionID: strPtr(" ")})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonTransactionIDMissing))

	_, err = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: userID, ShippingAddress: address(), PaymentMethod: "COD"})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonCartEmpty))
}

func TestPlaceOrderInsufficientStockLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	p := h.product(t, "Chair", 50000, 5)
	_, err := h.carts.AddItem(ctx, userID, p.ID, 5)
	require.NoError(t, err)
	require.NoError(t, h.client.DB().Model(&models.Product{}).Where("id = ?", p.ID).Update("stock", 3).Error)

	_, err = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: userID, ShippingAddress: address(), PaymentMethod: "COD"})
	require.Error(t, err)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, "Chair", details["name"])
	require.Equal(t, 3, details["available"])

	require.Equal(t, 3, h.reload(t, p.ID).Stock)
	var count int64
	require.NoError(t, h.client.DB().Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)
	var items int64
	require.NoError(t, h.client.DB().Model(&models.CartItem{}).Count(&items).Error)
	require.Equal(t, int64(1), items)
}

func TestPlaceOrderRejectsDeletedProduct(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	p := h.product(t, "Shelf", 50000, 5)
	_, err := h.carts.AddItem(ctx, userID, p.ID, 1)
	require.NoError(t, err)
	_, err = h.products.SoftDelete(ctx, p.ID)
	require.NoError(t, err)

	_, err = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: userID, ShippingAddress: address(), PaymentMethod: "COD"})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonProductNotFound))
}

func TestPlaceOrderSurfacesPromotionRejection(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	p := h.product(t, "Rug", 50000, 5)
	_, err := h.carts.AddItem(ctx, userID, p.ID, 1)
	require.NoError(t, err)

	_, err = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: userID, ShippingAddress: address(), PaymentMethod: "COD", DiscountCode: strPtr("GHOST")})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidCode))
	require.Equal(t, 5, h.reload(t, p.ID).Stock)
}

// dbtest runs transactions one at a time, so the losers here fail on the stock
// read. TestStockTakenAfterReadRejectsOrder covers a lost decrement.
func TestConcurrentCheckoutsSellLastUnitOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.product(t, "Limited", 10000, 1)

	const buyers = 8
	users := make([]uuid.UUID, buyers)
	for i := range users {
		users[i] = uuid.New()
		_, err := h.carts.AddItem(ctx, users[i], p.ID, 1)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: users[i], ShippingAddress: address(), PaymentMethod: "COD"})
		}(i)
	}
	wg.Wait()

	success := 0
	for _, err := range errs {
		if err == nil {
			success++
			continue
		}
		require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock), "unexpected error: %v", err)
	}
	require.Equal(t, 1, success)

	after := h.reload(t, p.ID)
	require.Equal(t, 0, after.Stock)
	require.Equal(t, 1, after.SoldCount)
}

// The stock read passes but another buyer takes the units before the
// conditional decrement runs. The whole placement must roll back.
func TestStockTakenAfterReadRejectsOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	p := h.product(t, "Kettle", 25000, 2)
	_, err := h.carts.AddItem(ctx, userID, p.ID, 2)
	require.NoError(t, err)

	var sniped atomic.Bool
	require.NoError(t, h.client.DB().Callback().Create().After("gorm:create").Register("checkout_test:rival_buyer", func(tx *gorm.DB) {
		if tx.Statement.Table != "orders" || !sniped.CompareAndSwap(false, true) {
			return
		}
		rival := tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE products SET stock = 1 WHERE id = ?", p.ID)
		require.NoError(t, rival.Error)
	}))

	_, err = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: userID, ShippingAddress: address(), PaymentMethod: "COD"})
	require.True(t, sniped.Load())
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock), "unexpected error: %v", err)
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	var orderCount, outboxCount, cartLines int64
	require.NoError(t, h.client.DB().Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, h.client.DB().Model(&models.OutboxEvent{}).Count(&outboxCount).Error)
	require.NoError(t, h.client.DB().Model(&models.CartItem{}).Where("product_id = ? AND quantity = 2", p.ID).Count(&cartLines).Error)
	require.Zero(t, orderCount)
	require.Zero(t, outboxCount)
	require.Equal(t, int64(1), cartLines)

	after := h.reload(t, p.ID)
	require.Equal(t, 2, after.Stock)
	require.Zero(t, after.SoldCount)
}

func TestPlaceOrderRetriesOrderCodeCollision(t *testing.T) {
	calls := 0
	codes := func(time.Time) (string, error) {
		calls++
		if calls <= 2 {
			return "FSDUPLICATE", nil
		}
		return "FSUNIQUE", nil
	}
	h := newHarness(t, codes)
	ctx := context.Background()
	p := h.product(t, "Mug", 1000, 10)

	first, second := uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{first, second} {
		_, err := h.carts.AddItem(ctx, u, p.ID, 1)
		require.NoError(t, err)
	}

	a, err := h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: first, ShippingAddress: address(), PaymentMethod: "COD"})
	require.NoError(t, err)
	require.Equal(t, "FSDUPLICATE", a.Code)

	b, err := h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: second, ShippingAddress: address(), PaymentMethod: "COD"})
	require.NoError(t, err)
	require.Equal(t, "FSUNIQUE", b.Code)
	require.Equal(t, 3, calls)
	require.Equal(t, 8, h.reload(t, p.ID).Stock)
}

func TestPlaceOrderGivesUpAfterRepeatedCollisions(t *testing.T) {
	h := newHarness(t, func(time.Time) (string, error) { return "FSSAME", nil })
	ctx := context.Background()
	p := h.product(t, "Plate", 1000, 10)
	first, second := uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{first, second} {
		_, err := h.carts.AddItem(ctx, u, p.ID, 1)
		require.NoError(t, err)
	}

	_, err := h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: first, ShippingAddress: address(), PaymentMethod: "COD"})
	require.NoError(t, err)
	_, err = h.checkout.PlaceOrder(ctx, PlaceOrderInput{UserID: second, ShippingAddress: address(), PaymentMethod: "COD"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	require.Equal(t, 9, h.reload(t, p.ID).Stock)
}
