package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// PlaceOrderRequest is the checkout payload. The discount code is optional and
// is validated again against the live cart subtotal. Address and payment
// method are checked by the checkout service so rejections carry a reason.
// address_id picks a saved address instead of an inline one.
type PlaceOrderRequest struct {
	AddressID       *uuid.UUID            `json:"address_id,omitempty"`
	ShippingAddress types.ShippingAddress `json:"shipping_address" validate:"-"`
	PaymentMethod   string                `json:"payment_method"`
	DiscountCode    *string               `json:"discount_code,omitempty" validate:"omitempty,max=64"`
	TransactionID   *string               `json:"transaction_id,omitempty" validate:"omitempty,max=128"`
	Note            *string               `json:"note,omitempty" validate:"omitempty,max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// shopperHandler resolves the caller and writes whatever fn returns with
// status. A nil service answers 500 before anything is read.
func shopperHandler(ready bool, logg *logger.Logger, status int, fn func(r *http.Request, actor internalorders.Actor) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, role, err := middleware.Principal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := fn(r, internalorders.Actor{UserID: userID, Role: role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, out)
	}
}

// Place converts the caller's cart into an order.
func Place(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return shopperHandler(svc != nil, logg, http.StatusCreated, func(r *http.Request, actor internalorders.Actor) (any, error) {
		var payload PlaceOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		order, err := svc.PlaceOrder(r.Context(), checkout.PlaceOrderInput{
			UserID:          actor.UserID,
			Role:            actor.Role,
			AddressID:       payload.AddressID,
			ShippingAddress: payload.ShippingAddress,
			PaymentMethod:   payload.PaymentMethod,
			DiscountCode:    payload.DiscountCode,
			TransactionID:   payload.TransactionID,
			Note:            payload.Note,
		})
		if err != nil {
			return nil, err
		}
		logg.Info(logg.WithOrderID(r.Context(), order.ID.String()), "order.placed")
		return internalorders.NewOrderDTO(*order), nil
	})
}

// List pages through the caller's orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return shopperHandler(svc != nil, logg, http.StatusOK, func(r *http.Request, actor internalorders.Actor) (any, error) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			return nil, err
		}
		status, err := parseStatusFilter(r)
		if err != nil {
			return nil, err
		}
		return svc.ListMine(r.Context(), actor, status, params)
	})
}

func Stats(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return shopperHandler(svc != nil, logg, http.StatusOK, func(r *http.Request, actor internalorders.Actor) (any, error) {
		return svc.MyStats(r.Context(), actor)
	})
}

// Detail returns one order. Orders owned by another shopper answer 403.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return shopperHandler(svc != nil, logg, http.StatusOK, func(r *http.Request, actor internalorders.Actor) (any, error) {
		orderID, err := validators.PathUUID(r, "orderId", "order")
		if err != nil {
			return nil, err
		}
		return svc.Get(r.Context(), actor, orderID)
	})
}

// Cancel cancels an order that has not shipped yet and restocks its lines.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return shopperHandler(svc != nil, logg, http.StatusOK, func(r *http.Request, actor internalorders.Actor) (any, error) {
		orderID, err := validators.PathUUID(r, "orderId", "order")
		if err != nil {
			return nil, err
		}
		// the reason is optional, so no body at all is fine
		var payload CancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				return nil, err
			}
		}
		return svc.Cancel(r.Context(), actor, orderID, strings.TrimSpace(payload.Reason))
	})
}

// Track is the public lookup by order code.
func Track(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		code := strings.TrimSpace(chi.URLParam(r, "code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order code is required"))
			return
		}
		tracking, err := svc.Track(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tracking)
	}
}

func parseStatusFilter(r *http.Request) (*enums.OrderStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, nil
	}
	status, err := enums.ParseOrderStatus(strings.ToLower(raw))
	if err != nil {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidStatus, "invalid status filter").WithDetails(map[string]any{"status": raw})
	}
	return &status, nil
}
