package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the reconciled cart operations.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*CartView, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartView, error)
	UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartView, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*CartView, error)
	Clear(ctx context.Context, userID uuid.UUID) (*CartView, error)
	ApplyDiscount(ctx context.Context, userID uuid.UUID, code string) (*CartView, error)
	RemoveDiscount(ctx context.Context, userID uuid.UUID) (*CartView, error)
}

type service struct {
	repo      CartRepository
	products  *product.Repository
	validator *promotions.Validator
	tx        txRunner
	now       func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, products *product.Repository, validator *promotions.Validator, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if validator == nil {
		return nil, fmt.Errorf("promotion validator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:      repo,
		products:  products,
		validator: validator,
		tx:        tx,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// session is one cart operation bound to a transaction.
type session struct {
	ctx       context.Context
	repo      CartRepository
	products  *product.Repository
	validator *promotions.Validator
	now       time.Time

	cart     *models.Cart
	lines    []LiveLine
	catalog  map[uuid.UUID]models.Product
	adjusted bool
	// mutated is set once an operation has touched the lines or discount.
	mutated bool
}

// totals is the persisted money state of a cart, compared to skip no-op writes.
type totals struct {
	subtotal, discount, total int64
	code                      string
}

func totalsOf(c *models.Cart) totals {
	t := totals{subtotal: c.Subtotal, discount: c.DiscountAmount, total: c.Total}
	if c.DiscountCode != nil {
		t.code = *c.DiscountCode
	}
	return t
}

func (s *service) run(ctx context.Context, userID uuid.UUID, mutate func(*session) error) (*CartView, error) {
	var view *CartView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sess := &session{
			ctx:       ctx,
			repo:      s.repo.WithTx(tx),
			products:  s.products.WithTx(tx),
			validator: s.validator.WithTx(tx),
			now:       s.now(),
		}
		if err := sess.load(userID); err != nil {
			return err
		}
		before := totalsOf(sess.cart)
		if mutate != nil {
			if err := mutate(sess); err != nil {
				return err
			}
			sess.mutated = true
		}
		if err := sess.commit(before); err != nil {
			return err
		}
		view = sess.view()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// load fetches the cart and reconciles its lines against the catalog.
func (s *session) load(userID uuid.UUID) error {
	cart, err := s.repo.GetOrCreate(s.ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	s.cart = cart
	lines := linesFromItems(cart.Items)
	if err := s.refreshCatalog(lines, nil); err != nil {
		return err
	}
	s.lines, s.adjusted = Reconcile(lines, s.catalog)
	return nil
}

func (s *session) refreshCatalog(lines []LiveLine, extra *uuid.UUID) error {
	ids := make([]uuid.UUID, 0, len(lines)+1)
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	if extra != nil {
		ids = append(ids, *extra)
	}
	catalog, err := s.products.FindByIDs(s.ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart products")
	}
	s.catalog = catalog
	return nil
}

func (s *session) indexOf(productID uuid.UUID) int {
	for i, line := range s.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// commit recomputes the derived money fields and persists whatever changed.
// A read that reconciled nothing and left the totals alone writes nothing. A
// held discount is re-validated whenever the subtotal moved.
func (s *session) commit(stored totals) error {
	subtotal := Subtotal(s.lines)
	s.cart.Subtotal = subtotal

	switch {
	case len(s.lines) == 0:
		s.cart.DiscountCode = nil
		s.cart.DiscountAmount = 0
	case s.cart.DiscountCode != nil && subtotal != stored.subtotal:
		result, err := s.validator.Validate(s.ctx, *s.cart.DiscountCode, subtotal, s.now)
		if err != nil {
			if !isRejection(err) {
				return err
			}
			s.cart.DiscountCode = nil
			s.cart.DiscountAmount = 0
			s.adjusted = true
		} else {
			s.cart.DiscountAmount = result.Amount
		}
	}
	s.cart.Total = pricing.CartTotal(s.cart.Subtotal, s.cart.DiscountAmount)

	linesChanged := s.mutated || s.adjusted
	if linesChanged {
		items := itemsFromLines(s.lines)
		if err := s.repo.ReplaceItems(s.ctx, s.cart.ID, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart items")
		}
		for i := range items {
			s.lines[i].ItemID = items[i].ID
		}
	}
	if !linesChanged && totalsOf(s.cart) == stored {
		return nil
	}
	if err := s.repo.SaveTotals(s.ctx, s.cart); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart totals")
	}
	return nil
}

func (s *session) view() *CartView {
	view := &CartView{
		ID:             s.cart.ID,
		Items:          make([]CartItemView, 0, len(s.lines)),
		Subtotal:       s.cart.Subtotal,
		DiscountCode:   s.cart.DiscountCode,
		DiscountAmount: s.cart.DiscountAmount,
		Total:          s.cart.Total,
		Adjusted:       s.adjusted,
		UpdatedAt:      s.cart.UpdatedAt,
	}
	for _, line := range s.lines {
		view.ItemCount += line.Quantity
		view.Items = append(view.Items, CartItemView{
			ProductID: line.ProductID,
			Product:   product.NewProductSummary(s.catalog[line.ProductID]),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal(),
		})
	}
	return view
}

// isRejection reports whether err is a business rejection from the validator
// rather than an infrastructure failure.
func isRejection(err error) bool {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeConflict:
		return true
	default:
		return false
	}
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidQuantity, "quantity must be at least 1")
	}
	return nil
}

func insufficientStock(p models.Product) error {
	return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonInsufficientStock, "not enough stock for "+p.Name).
		WithDetails(map[string]any{"product_id": p.ID.String(), "available": p.Stock})
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	return s.run(ctx, userID, nil)
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartView, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonMissingProductID, "product_id is required")
	}
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	return s.run(ctx, userID, func(sess *session) error {
		p, ok := sess.catalog[productID]
		if !ok {
			found, err := sess.products.FindByID(ctx, productID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonProductNotFound, "product not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}
			p = *found
			sess.catalog[productID] = p
		}

		idx := sess.indexOf(productID)
		existing := 0
		if idx >= 0 {
			existing = sess.lines[idx].Quantity
		}
		if existing+quantity > p.Stock {
			return insufficientStock(p)
		}
		if idx >= 0 {
			sess.lines[idx].Quantity = existing + quantity
			sess.lines[idx].UnitPrice = p.EffectivePrice()
			return nil
		}
		sess.lines = append(sess.lines, LiveLine{
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: p.EffectivePrice(),
		})
		return nil
	})
}

func (s *service) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartView, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	return s.run(ctx, userID, func(sess *session) error {
		idx := sess.indexOf(productID)
		if idx < 0 {
			return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonItemNotFound, "item not in cart")
		}
		p := sess.catalog[productID]
		if quantity > p.Stock {
			return insufficientStock(p)
		}
		sess.lines[idx].Quantity = quantity
		sess.lines[idx].UnitPrice = p.EffectivePrice()
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*CartView, error) {
	return s.run(ctx, userID, func(sess *session) error {
		idx := sess.indexOf(productID)
		if idx < 0 {
			return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonItemNotFound, "item not in cart")
		}
		sess.lines = append(sess.lines[:idx], sess.lines[idx+1:]...)
		return nil
	})
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	return s.run(ctx, userID, func(sess *session) error {
		sess.lines = sess.lines[:0]
		sess.cart.DiscountCode = nil
		sess.cart.DiscountAmount = 0
		return nil
	})
}

// ApplyDiscount attaches code to the cart. On rejection the transaction rolls
// back so the cart is left exactly as it was.
func (s *service) ApplyDiscount(ctx context.Context, userID uuid.UUID, code string) (*CartView, error) {
	return s.run(ctx, userID, func(sess *session) error {
		if len(sess.lines) == 0 {
			return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonCartEmpty, "cart is empty")
		}
		result, err := sess.validator.Validate(ctx, code, Subtotal(sess.lines), sess.now)
		if err != nil {
			return err
		}
		normalized := result.Promotion.Code
		sess.cart.DiscountCode = &normalized
		sess.cart.DiscountAmount = result.Amount
		return nil
	})
}

func (s *service) RemoveDiscount(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	return s.run(ctx, userID, func(sess *session) error {
		sess.cart.DiscountCode = nil
		sess.cart.DiscountAmount = 0
		return nil
	})
}
