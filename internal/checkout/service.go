package checkout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	maxCodeAttempts = 3
	codeSavepoint   = "order_code"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AddressBook resolves a saved address of the buyer.
type AddressBook interface {
	ShippingAddress(ctx context.Context, userID, addressID uuid.UUID) (types.ShippingAddress, error)
}

// Service places orders from the user's cart.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
}

// PlaceOrderInput captures everything the client sends at checkout. A discount
// attached to the cart is not carried over; the code must be sent again.
// AddressID, when set, replaces ShippingAddress with a saved address.
type PlaceOrderInput struct {
	UserID          uuid.UUID
	Role            enums.UserRole
	AddressID       *uuid.UUID
	ShippingAddress types.ShippingAddress
	PaymentMethod   string
	DiscountCode    *string
	TransactionID   *string
	Note            *string
}

// Deps bundles the collaborators of the checkout service.
type Deps struct {
	Tx         txRunner
	Carts      cart.CartRepository
	Products   *product.Repository
	Promotions *promotions.Validator
	Orders     orders.Repository
	Shipping   pricing.ShippingPolicy
	Outbox     outboxPublisher
	Metrics    *metrics.OrderMetrics
	Addresses  AddressBook
	Codes      CodeGenerator
	Now        func() time.Time
}

type service struct {
	tx        txRunner
	carts     cart.CartRepository
	products  *product.Repository
	validator *promotions.Validator
	orders    orders.Repository
	shipping  pricing.ShippingPolicy
	outbox    outboxPublisher
	metrics   *metrics.OrderMetrics
	addresses AddressBook
	codes     CodeGenerator
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(deps Deps) (Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if deps.Promotions == nil {
		return nil, fmt.Errorf("promotion validator required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Codes == nil {
		deps.Codes = NewOrderCode
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:        deps.Tx,
		carts:     deps.Carts,
		products:  deps.Products,
		validator: deps.Promotions,
		orders:    deps.Orders,
		shipping:  deps.Shipping,
		outbox:    deps.Outbox,
		metrics:   deps.Metrics,
		addresses: deps.Addresses,
		codes:     deps.Codes,
		now:       deps.Now,
	}, nil
}

func validateInput(input *PlaceOrderInput) (enums.PaymentMethod, error) {
	if input.UserID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	input.ShippingAddress = input.ShippingAddress.Normalize()
	if missing := input.ShippingAddress.Missing(); len(missing) > 0 {
		return "", pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidAddress, "shipping address is incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	method, err := enums.ParsePaymentMethod(strings.ToUpper(strings.TrimSpace(input.PaymentMethod)))
	if err != nil {
		return "", pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidPayment, "payment method must be COD or BANK")
	}
	input.TransactionID = trimmed(input.TransactionID)
	if method.RequiresTransactionID() && input.TransactionID == nil {
		return "", pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonTransactionIDMissing, "bank transfers require a transaction id")
	}
	input.Note = trimmed(input.Note)
	input.DiscountCode = trimmed(input.DiscountCode)
	return method, nil
}

func (s *service) resolveAddress(ctx context.Context, input *PlaceOrderInput) error {
	if input.AddressID == nil {
		return nil
	}
	if s.addresses == nil {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidAddress, "saved addresses are not available")
	}
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	addr, err := s.addresses.ShippingAddress(ctx, input.UserID, *input.AddressID)
	if err != nil {
		return err
	}
	input.ShippingAddress = addr
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

// PlaceOrder converts the cart into an order in a single transaction: the
// order row, its frozen lines, the stock decrements, the cart reset and the
// order_created event commit together or not at all.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if err := s.resolveAddress(ctx, &input); err != nil {
		s.metrics.IncRejected(string(pkgerrors.ReasonOf(err)))
		return nil, err
	}
	method, err := validateInput(&input)
	if err != nil {
		s.metrics.IncRejected(string(pkgerrors.ReasonOf(err)))
		return nil, err
	}

	var placed *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		carts := s.carts.WithTx(tx)
		products := s.products.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		userCart, err := carts.FindByUserID(ctx, input.UserID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if userCart == nil || len(userCart.Items) == 0 {
			return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonCartEmpty, "cart is empty")
		}

		ids := make([]uuid.UUID, 0, len(userCart.Items))
		for _, item := range userCart.Items {
			ids = append(ids, item.ProductID)
		}
		catalog, err := products.FindByIDs(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}

		lines, subtotal, err := freezeLines(userCart.Items, catalog)
		if err != nil {
			return err
		}

		var (
			discountCode   *string
			discountAmount int64
		)
		if input.DiscountCode != nil {
			result, err := s.validator.WithTx(tx).Validate(ctx, *input.DiscountCode, subtotal, now)
			if err != nil {
				return err
			}
			code := result.Promotion.Code
			discountCode = &code
			discountAmount = result.Amount
		}

		fee := s.shipping.ShippingFee(subtotal)
		order := &models.Order{
			UserID:          input.UserID,
			ShippingAddress: input.ShippingAddress,
			PaymentMethod:   method,
			PaymentStatus:   method.InitialPaymentStatus(),
			TransactionID:   input.TransactionID,
			SubTotal:        subtotal,
			ShippingFee:     fee,
			DiscountCode:    discountCode,
			DiscountAmount:  discountAmount,
			TotalAmount:     pricing.Total(subtotal, fee, discountAmount),
			Status:          enums.OrderStatusPending,
			Note:            input.Note,
		}
		if err := s.createWithUniqueCode(ctx, tx, ordersRepo, order, now); err != nil {
			return err
		}

		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := ordersRepo.CreateLineItems(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order lines")
		}
		order.Items = lines

		if err := decrementAll(ctx, products, lines, catalog); err != nil {
			return err
		}

		if err := carts.Empty(ctx, userCart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		itemCount := 0
		for _, line := range lines {
			itemCount += line.Quantity
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(input.Role)},
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				Code:          order.Code,
				UserID:        order.UserID,
				TotalAmount:   order.TotalAmount,
				PaymentMethod: order.PaymentMethod,
				PaymentStatus: order.PaymentStatus,
				ItemCount:     itemCount,
				DiscountCode:  order.DiscountCode,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_created")
		}

		placed = order
		return nil
	})
	if err != nil {
		if reason := pkgerrors.ReasonOf(err); reason != "" {
			s.metrics.IncRejected(string(reason))
		}
		return nil, err
	}
	s.metrics.IncPlaced(string(method))
	return placed, nil
}

// freezeLines snapshots each cart line at the product's live effective price.
func freezeLines(items []models.CartItem, catalog map[uuid.UUID]models.Product) ([]models.OrderLineItem, int64, error) {
	lines := make([]models.OrderLineItem, 0, len(items))
	priced := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		p, ok := catalog[item.ProductID]
		if !ok {
			return nil, 0, pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonProductNotFound, "a product in the cart is no longer available").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if p.Stock < item.Quantity {
			return nil, 0, insufficientStock(p, item.Quantity)
		}
		price := p.EffectivePrice()
		lines = append(lines, models.OrderLineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.PrimaryImage(),
			Quantity:  item.Quantity,
			UnitPrice: price,
			LineTotal: pricing.LineTotal(int64(item.Quantity), price),
		})
		priced = append(priced, pricing.Line{Quantity: int64(item.Quantity), UnitPrice: price})
	}
	return lines, pricing.Subtotal(priced), nil
}

// decrementAll takes stock for every line in product id order so concurrent
// checkouts touch rows in the same sequence.
func decrementAll(ctx context.Context, products *product.Repository, lines []models.OrderLineItem, catalog map[uuid.UUID]models.Product) error {
	ordered := append([]models.OrderLineItem(nil), lines...)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].ProductID[:], ordered[j].ProductID[:]) < 0
	})
	for _, line := range ordered {
		ok, err := products.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			return insufficientStock(catalog[line.ProductID], line.Quantity)
		}
	}
	return nil
}

func (s *service) createWithUniqueCode(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, now time.Time) error {
	for attempt := 1; ; attempt++ {
		code, err := s.codes(now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order code")
		}
		order.Code = code

		if err := tx.SavePoint(codeSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "savepoint")
		}
		err = repo.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !isCodeCollision(err) || attempt >= maxCodeAttempts {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if rbErr := tx.RollbackTo(codeSavepoint).Error; rbErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback to savepoint")
		}
	}
}

func isCodeCollision(err error) bool {
	return db.IsUniqueViolation(err, "orders_code_key") || db.IsUniqueViolation(err, "orders.code")
}

func insufficientStock(p models.Product, requested int) error {
	return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonInsufficientStock, "not enough stock for "+p.Name).
		WithDetails(map[string]any{
			"product_id": p.ID.String(),
			"name":       p.Name,
			"available":  p.Stock,
			"requested":  requested,
		})
}
