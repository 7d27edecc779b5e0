package cart

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	cartdto "github.com/angelmondragon/storefront-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type cartAction func(ctx context.Context, userID uuid.UUID, r *http.Request) (*cartsvc.CartView, error)

// handle resolves the caller and renders the reconciled cart returned by action.
func handle(svc cartsvc.Service, logg *logger.Logger, action cartAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		userID, _, err := middleware.Principal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := action(r.Context(), userID, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartFetch returns the caller's cart after reconciling it against the catalog.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(ctx context.Context, userID uuid.UUID, _ *http.Request) (*cartsvc.CartView, error) {
		return svc.GetCart(ctx, userID)
	})
}

// CartAddItem adds a product to the cart, merging with an existing line.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(ctx context.Context, userID uuid.UUID, r *http.Request) (*cartsvc.CartView, error) {
		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.AddItem(ctx, userID, payload.ProductID, payload.Quantity)
	})
}

func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(ctx context.Context, userID uuid.UUID, r *http.Request) (*cartsvc.CartView, error) {
		productID, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			return nil, err
		}
		var payload cartdto.UpdateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateItem(ctx, userID, productID, payload.Quantity)
	})
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(ctx context.Context, userID uuid.UUID, r *http.Request) (*cartsvc.CartView, error) {
		productID, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(ctx, userID, productID)
	})
}

// CartClear drops every line and any attached discount.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(ctx context.Context, userID uuid.UUID, _ *http.Request) (*cartsvc.CartView, error) {
		return svc.Clear(ctx, userID)
	})
}

// CartApplyDiscount validates a promotion code against the current subtotal
// and attaches it to the cart.
func CartApplyDiscount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(ctx context.Context, userID uuid.UUID, r *http.Request) (*cartsvc.CartView, error) {
		var payload cartdto.ApplyDiscountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.ApplyDiscount(ctx, userID, payload.Code)
	})
}

func CartRemoveDiscount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(ctx context.Context, userID uuid.UUID, _ *http.Request) (*cartsvc.CartView, error) {
		return svc.RemoveDiscount(ctx, userID)
	})
}
